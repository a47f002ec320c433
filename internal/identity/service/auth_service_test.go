package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	accountdomain "identity-provider/backend/internal/account/domain"
	accountrepo "identity-provider/backend/internal/account/repository"
	"identity-provider/backend/internal/audit"
	"identity-provider/backend/internal/mfa"
	mfarepo "identity-provider/backend/internal/mfa/repository"
	rolerepo "identity-provider/backend/internal/role/repository"
	"identity-provider/backend/internal/security"
	sessionrepo "identity-provider/backend/internal/session/repository"
	sessionservice "identity-provider/backend/internal/session/service"
)

const testPassword = "P@ssw0rd1"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordedEvent struct {
	accountID, action, resource, metadata string
}

type recordingAudit struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingAudit) LogEvent(_ context.Context, accountID, action, resource, metadata string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{accountID, action, resource, metadata})
}

func (r *recordingAudit) count(action string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.action == action {
			n++
		}
	}
	return n
}

type fixture struct {
	svc        *AuthService
	accounts   *accountrepo.MemoryRepository
	roles      *rolerepo.MemoryRepository
	sessions   *sessionrepo.MemoryRepository
	challenges *mfarepo.MemoryRepository
	mfa        *mfa.Service
	hasher     *security.Hasher
	clock      *fakeClock
	audit      *recordingAudit
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		accounts:   accountrepo.NewMemoryRepository(),
		roles:      rolerepo.NewMemoryRepository(),
		sessions:   sessionrepo.NewMemoryRepository(),
		challenges: mfarepo.NewMemoryRepository(),
		hasher:     security.NewHasher(4),
		clock:      &fakeClock{t: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)},
		audit:      &recordingAudit{},
	}
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	ledger := sessionservice.NewLedger(f.sessions, sessionservice.WithLedgerClock(f.clock.Now))
	codec := security.NewTestTokenCodec(security.WithClock(f.clock.Now))
	f.mfa = mfa.NewService(f.accounts, "test-issuer", mfa.WithClock(f.clock.Now))
	f.svc = NewAuthService(f.accounts, f.roles, ledger, f.hasher, codec, cfg,
		WithClock(f.clock.Now),
		WithAuditLogger(f.audit),
		WithMFA(f.challenges, f.mfa),
	)
	return f
}

func (f *fixture) createAccount(t *testing.T, username, email string) *accountdomain.Account {
	t.Helper()
	hash, err := f.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	a := &accountdomain.Account{
		ID:           "acc-" + username,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Enabled:      true,
		CreatedAt:    f.clock.Now(),
		UpdatedAt:    f.clock.Now(),
	}
	if err := f.accounts.Create(context.Background(), a); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return a
}

func (f *fixture) login(t *testing.T, identifier string) *TokenPair {
	t.Helper()
	res, err := f.svc.Login(context.Background(), identifier, testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Tokens == nil {
		t.Fatal("Login returned no tokens")
	}
	return res.Tokens
}

func TestLogin_Success(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	a := f.createAccount(t, "alice", "alice@example.com")
	if err := f.roles.Assign(ctx, a.ID, "admin"); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	res, err := f.svc.Login(ctx, "alice", testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.MFARequired {
		t.Fatal("MFARequired should be false without enrollment")
	}
	pair := res.Tokens
	if pair.TokenType != "Bearer" {
		t.Errorf("TokenType = %q, want Bearer", pair.TokenType)
	}
	if pair.ExpiresIn != 900 {
		t.Errorf("ExpiresIn = %d, want 900", pair.ExpiresIn)
	}
	if pair.AccountID != a.ID || pair.SessionID == "" {
		t.Errorf("pair = %+v", pair)
	}
	if !f.svc.ValidateAccessToken(ctx, pair.AccessToken) {
		t.Error("fresh access token should validate")
	}
	claims, err := f.svc.Authenticate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if claims.Username != "alice" || len(claims.Roles) != 1 || claims.Roles[0] != "admin" {
		t.Errorf("claims = %+v", claims)
	}

	stored, _ := f.accounts.GetByID(ctx, a.ID)
	if stored.LastLoginAt == nil || !stored.LastLoginAt.Equal(f.clock.Now()) {
		t.Errorf("LastLoginAt = %v", stored.LastLoginAt)
	}
	if f.audit.count(audit.ActionLoginSuccess) != 1 {
		t.Error("expected one login success audit event")
	}
}

func TestLogin_ByEmailCaseInsensitive(t *testing.T) {
	f := newFixture(t, nil)
	f.createAccount(t, "bob", "bob@example.com")
	f.login(t, "BOB@Example.com")
}

func TestLogin_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createAccount(t, "carol", "")
	disabled := f.createAccount(t, "dave", "")
	if err := f.accounts.SetEnabled(ctx, disabled.ID, false, f.clock.Now()); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}

	tests := []struct {
		name       string
		identifier string
		password   string
		wantErr    error
	}{
		{"unknown account", "nobody", testPassword, ErrInvalidCredentials},
		{"wrong password", "carol", "wrong", ErrInvalidCredentials},
		{"empty identifier", "  ", testPassword, ErrInvalidCredentials},
		{"empty password", "carol", "", ErrInvalidCredentials},
		{"disabled", "dave", testPassword, ErrAccountDisabled},
		{"disabled with wrong password", "dave", "wrong", ErrAccountDisabled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.Login(ctx, tt.identifier, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Login err = %v, want %v", err, tt.wantErr)
			}
			if res != nil {
				t.Errorf("result = %+v, want nil", res)
			}
		})
	}
}

func TestLogin_LockoutAndExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	a := f.createAccount(t, "erin", "")

	for i := 1; i <= 5; i++ {
		if _, err := f.svc.Login(ctx, "erin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: err = %v, want ErrInvalidCredentials", i, err)
		}
	}
	stored, _ := f.accounts.GetByID(ctx, a.ID)
	if !stored.Locked || stored.FailedAttempts != 5 || stored.LockExpiresAt == nil {
		t.Fatalf("after 5 failures: locked=%v attempts=%d expires=%v", stored.Locked, stored.FailedAttempts, stored.LockExpiresAt)
	}
	if want := f.clock.Now().Add(15 * time.Minute); !stored.LockExpiresAt.Equal(want) {
		t.Errorf("LockExpiresAt = %v, want %v", stored.LockExpiresAt, want)
	}
	if f.audit.count(audit.ActionAccountLocked) != 1 {
		t.Errorf("account_locked events = %d, want 1", f.audit.count(audit.ActionAccountLocked))
	}

	if _, err := f.svc.Login(ctx, "erin", testPassword); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("correct password while locked: err = %v, want ErrAccountLocked", err)
	}

	f.clock.Advance(15*time.Minute + time.Second)
	f.login(t, "erin")
	stored, _ = f.accounts.GetByID(ctx, a.ID)
	if stored.Locked || stored.FailedAttempts != 0 || stored.LockExpiresAt != nil {
		t.Errorf("after expiry: locked=%v attempts=%d expires=%v", stored.Locked, stored.FailedAttempts, stored.LockExpiresAt)
	}
}

func TestLogin_ExpiredLockResetsCounterBeforeEvaluation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	a := f.createAccount(t, "fay", "")
	for i := 0; i < 5; i++ {
		_, _ = f.svc.Login(ctx, "fay", "wrong")
	}
	f.clock.Advance(31 * time.Minute)

	if _, err := f.svc.Login(ctx, "fay", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	stored, _ := f.accounts.GetByID(ctx, a.ID)
	if stored.Locked || stored.FailedAttempts != 1 {
		t.Errorf("locked=%v attempts=%d, want unlocked with 1 attempt", stored.Locked, stored.FailedAttempts)
	}
}

func TestLogin_AdministrativeLockHasNoExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	a := f.createAccount(t, "gil", "")
	if err := f.accounts.SetLocked(ctx, a.ID, true, nil, f.clock.Now()); err != nil {
		t.Fatalf("SetLocked: %v", err)
	}
	f.clock.Advance(365 * 24 * time.Hour)
	if _, err := f.svc.Login(ctx, "gil", testPassword); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("err = %v, want ErrAccountLocked", err)
	}
}

func TestLogin_SuccessResetsFailedAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	a := f.createAccount(t, "hal", "")
	for i := 0; i < 3; i++ {
		_, _ = f.svc.Login(ctx, "hal", "wrong")
	}
	f.login(t, "hal")
	stored, _ := f.accounts.GetByID(ctx, a.ID)
	if stored.FailedAttempts != 0 {
		t.Errorf("FailedAttempts = %d, want 0", stored.FailedAttempts)
	}
}

func TestValidateAccessToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createAccount(t, "ivy", "")
	pair := f.login(t, "ivy")

	if f.svc.ValidateAccessToken(ctx, "not-a-token") {
		t.Error("garbage should not validate")
	}
	if f.svc.ValidateAccessToken(ctx, pair.RefreshToken) {
		t.Error("refresh token should not validate as access token")
	}
	f.clock.Advance(15*time.Minute + time.Second)
	if f.svc.ValidateAccessToken(ctx, pair.AccessToken) {
		t.Error("expired access token should not validate")
	}
}

func TestRefresh_RotatesPair(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createAccount(t, "jan", "")
	first := f.login(t, "jan")

	second, err := f.svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	codec := security.NewTestTokenCodec(security.WithClock(f.clock.Now))
	if codec.ExtractID(second.AccessToken) == codec.ExtractID(first.AccessToken) {
		t.Error("access jti should change on refresh")
	}
	if codec.ExtractID(second.RefreshToken) == codec.ExtractID(first.RefreshToken) {
		t.Error("refresh jti should change on refresh")
	}
	if second.SessionID == first.SessionID {
		t.Error("refresh should open a new session")
	}
	if !f.svc.ValidateAccessToken(ctx, second.AccessToken) {
		t.Error("new access token should validate")
	}
	if !f.svc.ValidateAccessToken(ctx, first.AccessToken) {
		t.Error("previous access token stays valid until it expires")
	}

	rec, _ := f.sessions.GetRefreshByJti(ctx, codec.ExtractID(first.RefreshToken))
	if rec.LastUsedAt == nil {
		t.Error("consumed record should have LastUsedAt stamped")
	}
}

func TestRefresh_StrictRejectsReuse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createAccount(t, "kim", "")
	first := f.login(t, "kim")

	if _, err := f.svc.Refresh(ctx, first.RefreshToken); err != nil {
		t.Fatalf("first Refresh: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("replay err = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestRefresh_ReplayRevokesAccountSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	a := f.createAccount(t, "kit", "")
	first := f.login(t, "kit")
	other := f.login(t, "kit")

	second, err := f.svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("first Refresh: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("replay err = %v, want ErrInvalidRefreshToken", err)
	}

	if _, err := f.svc.Refresh(ctx, second.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("successor refresh after replay: err = %v, want ErrInvalidRefreshToken", err)
	}
	if f.svc.ValidateAccessToken(ctx, second.AccessToken) {
		t.Error("successor access token should be revoked after replay")
	}
	if f.svc.ValidateAccessToken(ctx, other.AccessToken) {
		t.Error("other sessions of the account should be revoked after replay")
	}
	if sessions, _ := f.svc.ListSessions(ctx, a.ID); len(sessions) != 0 {
		t.Errorf("active sessions after replay = %d, want 0", len(sessions))
	}
	if f.audit.count(audit.ActionRefreshRejected) == 0 {
		t.Error("replay should be audited")
	}
}

func TestRefresh_ReplayLeavesOtherAccountsAlone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createAccount(t, "lou", "")
	f.createAccount(t, "mel", "")
	lou := f.login(t, "lou")
	mel := f.login(t, "mel")

	if _, err := f.svc.Refresh(ctx, lou.RefreshToken); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, lou.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("replay err = %v", err)
	}
	if !f.svc.ValidateAccessToken(ctx, mel.AccessToken) {
		t.Error("another account's session must survive a replay")
	}
}

func TestRefresh_LoggedOutTokenDoesNotRevokeAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createAccount(t, "ivy", "")
	gone := f.login(t, "ivy")
	kept := f.login(t, "ivy")

	if err := f.svc.Logout(ctx, gone.AccessToken, gone.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, gone.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("refresh after logout: err = %v", err)
	}
	if !f.svc.ValidateAccessToken(ctx, kept.AccessToken) {
		t.Error("a revoked, never rotated token must not revoke other sessions")
	}
}

func TestRefresh_NonStrictAllowsReuse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(c *Config) { c.StrictRotation = false })
	f.createAccount(t, "lee", "")
	first := f.login(t, "lee")

	if _, err := f.svc.Refresh(ctx, first.RefreshToken); err != nil {
		t.Fatalf("first Refresh: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, first.RefreshToken); err != nil {
		t.Fatalf("second Refresh in non-strict mode: %v", err)
	}
}

func TestRefresh_StrictConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createAccount(t, "max", "")
	first := f.login(t, "max")

	const n = 8
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Refresh(ctx, first.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok := 0
	for err := range results {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, ErrInvalidRefreshToken):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("successful refreshes = %d, want 1", ok)
	}
}

func TestRefresh_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	a := f.createAccount(t, "ned", "")
	pair := f.login(t, "ned")

	if _, err := f.svc.Refresh(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("access token as refresh: err = %v", err)
	}
	if _, err := f.svc.Refresh(ctx, "garbage"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("garbage: err = %v", err)
	}

	if err := f.accounts.SetEnabled(ctx, a.ID, false, f.clock.Now()); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrAccountDisabled) {
		t.Errorf("disabled account: err = %v, want ErrAccountDisabled", err)
	}
}

func TestRefresh_Expired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createAccount(t, "oli", "")
	pair := f.login(t, "oli")

	f.clock.Advance(7*24*time.Hour + time.Second)
	if _, err := f.svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("err = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createAccount(t, "pat", "")
	pair := f.login(t, "pat")

	if err := f.svc.Logout(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if f.svc.ValidateAccessToken(ctx, pair.AccessToken) {
		t.Error("access token should be invalid after logout")
	}
	if _, err := f.svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("refresh after logout: err = %v, want ErrInvalidRefreshToken", err)
	}
	if err := f.svc.Logout(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		t.Errorf("second Logout: %v", err)
	}
	if err := f.svc.Logout(ctx, "garbage", ""); !errors.Is(err, ErrInvalidAccessToken) {
		t.Errorf("garbage Logout: err = %v, want ErrInvalidAccessToken", err)
	}
}

func TestLogout_AccessOnlyRevokesLinkedRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createAccount(t, "quinn", "")
	pair := f.login(t, "quinn")

	if err := f.svc.Logout(ctx, pair.AccessToken, ""); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("refresh after access-only logout: err = %v", err)
	}
}

func TestMFALogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	a := f.createAccount(t, "rae", "rae@example.com")
	enrollment, err := f.mfa.Enroll(ctx, a.ID)
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	res, err := f.svc.Login(ctx, "rae", testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !res.MFARequired || res.Tokens != nil || res.ChallengeID == "" {
		t.Fatalf("result = %+v, want MFA challenge without tokens", res)
	}
	if want := f.clock.Now().Add(5 * time.Minute); !res.ChallengeExpiresAt.Equal(want) {
		t.Errorf("ChallengeExpiresAt = %v, want %v", res.ChallengeExpiresAt, want)
	}

	code, err := mfa.CodeAt(enrollment.Secret, f.clock.Now())
	if err != nil {
		t.Fatalf("CodeAt: %v", err)
	}
	wrong := []byte(code)
	wrong[0] = '0' + (wrong[0]-'0'+5)%10
	if _, err := f.svc.CompleteMFALogin(ctx, res.ChallengeID, string(wrong)); !errors.Is(err, mfa.ErrInvalidMFACode) {
		t.Fatalf("wrong code: err = %v, want ErrInvalidMFACode", err)
	}
	stored, _ := f.accounts.GetByID(ctx, a.ID)
	if stored.FailedAttempts != 1 {
		t.Errorf("FailedAttempts = %d, want 1 after wrong code", stored.FailedAttempts)
	}

	pair, err := f.svc.CompleteMFALogin(ctx, res.ChallengeID, code)
	if err != nil {
		t.Fatalf("CompleteMFALogin: %v", err)
	}
	if !f.svc.ValidateAccessToken(ctx, pair.AccessToken) {
		t.Error("access token from MFA login should validate")
	}
	stored, _ = f.accounts.GetByID(ctx, a.ID)
	if stored.FailedAttempts != 0 {
		t.Errorf("FailedAttempts = %d, want 0 after success", stored.FailedAttempts)
	}

	if _, err := f.svc.CompleteMFALogin(ctx, res.ChallengeID, code); !errors.Is(err, ErrInvalidMFAChallenge) {
		t.Errorf("reused challenge: err = %v, want ErrInvalidMFAChallenge", err)
	}
}

func TestMFALogin_ExpiredChallenge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	a := f.createAccount(t, "sam", "")
	enrollment, err := f.mfa.Enroll(ctx, a.ID)
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	res, err := f.svc.Login(ctx, "sam", testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	f.clock.Advance(5*time.Minute + time.Second)
	code, _ := mfa.CodeAt(enrollment.Secret, f.clock.Now())
	if _, err := f.svc.CompleteMFALogin(ctx, res.ChallengeID, code); !errors.Is(err, ErrInvalidMFAChallenge) {
		t.Fatalf("err = %v, want ErrInvalidMFAChallenge", err)
	}
}

func TestMFALogin_ChallengeExhausted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(c *Config) {
		c.MaxChallengeAttempts = 2
		c.MaxFailedAttempts = 10
	})
	a := f.createAccount(t, "tia", "")
	enrollment, err := f.mfa.Enroll(ctx, a.ID)
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	res, err := f.svc.Login(ctx, "tia", testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	code, _ := mfa.CodeAt(enrollment.Secret, f.clock.Now())
	wrong := []byte(code)
	wrong[0] = '0' + (wrong[0]-'0'+5)%10
	for i := 0; i < 2; i++ {
		_, _ = f.svc.CompleteMFALogin(ctx, res.ChallengeID, string(wrong))
	}
	if _, err := f.svc.CompleteMFALogin(ctx, res.ChallengeID, code); !errors.Is(err, ErrInvalidMFAChallenge) {
		t.Fatalf("err = %v, want ErrInvalidMFAChallenge", err)
	}
}

func TestMFALogin_DisabledByConfig(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(c *Config) { c.MFAEnabled = false })
	a := f.createAccount(t, "uma", "")
	if _, err := f.mfa.Enroll(ctx, a.ID); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	f.login(t, "uma")
}

func TestUserInfo(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	a := f.createAccount(t, "uma", "uma@example.com")
	if err := f.roles.Assign(ctx, a.ID, "admin"); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	info, err := f.svc.UserInfo(ctx, a.ID)
	if err != nil {
		t.Fatalf("UserInfo: %v", err)
	}
	if info.AccountID != a.ID || info.Username != "uma" || info.Email != "uma@example.com" || info.MFAEnabled {
		t.Errorf("info = %+v", info)
	}
	if len(info.Roles) != 1 || info.Roles[0] != "admin" {
		t.Errorf("Roles = %v, want [admin]", info.Roles)
	}

	if _, err := f.mfa.Enroll(ctx, a.ID); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if info, _ := f.svc.UserInfo(ctx, a.ID); !info.MFAEnabled {
		t.Error("MFAEnabled should follow enrollment")
	}

	if err := f.accounts.SetEnabled(ctx, a.ID, false, f.clock.Now()); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if _, err := f.svc.UserInfo(ctx, a.ID); !errors.Is(err, ErrInvalidAccessToken) {
		t.Errorf("disabled account: err = %v, want ErrInvalidAccessToken", err)
	}
	if _, err := f.svc.UserInfo(ctx, "missing"); !errors.Is(err, ErrInvalidAccessToken) {
		t.Errorf("missing account: err = %v, want ErrInvalidAccessToken", err)
	}
}

func TestIntrospect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	a := f.createAccount(t, "val", "")
	pair := f.login(t, "val")

	in := f.svc.Introspect(ctx, pair.AccessToken)
	if !in.Active || in.Subject != a.ID || in.Username != "val" || in.TokenType != "access" {
		t.Errorf("access introspection = %+v", in)
	}
	if !in.ExpiresAt.Equal(pair.AccessExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", in.ExpiresAt, pair.AccessExpiresAt)
	}
	in = f.svc.Introspect(ctx, pair.RefreshToken)
	if !in.Active || in.TokenType != "refresh" || in.SessionID != pair.SessionID {
		t.Errorf("refresh introspection = %+v", in)
	}
	if in := f.svc.Introspect(ctx, "garbage"); in.Active {
		t.Error("garbage should be inactive")
	}

	if err := f.svc.Logout(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if in := f.svc.Introspect(ctx, pair.AccessToken); in.Active {
		t.Error("access token should be inactive after logout")
	}
}

func TestRevokeRefreshToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createAccount(t, "wes", "")
	pair := f.login(t, "wes")

	if err := f.svc.RevokeRefreshToken(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("RevokeRefreshToken: %v", err)
	}
	if err := f.svc.RevokeRefreshToken(ctx, pair.RefreshToken); err != nil {
		t.Errorf("second RevokeRefreshToken: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("refresh after revoke: err = %v", err)
	}
	if err := f.svc.RevokeRefreshToken(ctx, "garbage"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("garbage: err = %v", err)
	}
}

func TestSessions_ListAndRevoke(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	a := f.createAccount(t, "xan", "")
	first := f.login(t, "xan")
	f.clock.Advance(time.Second)
	second := f.login(t, "xan")

	sessions, err := f.svc.ListSessions(ctx, a.ID)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != second.SessionID {
		t.Fatalf("sessions = %d, newest first expected", len(sessions))
	}

	if err := f.svc.RevokeSession(ctx, first.SessionID); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	if f.svc.ValidateAccessToken(ctx, first.AccessToken) {
		t.Error("revoked session's access token should not validate")
	}
	if _, err := f.svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("linked refresh should be revoked: err = %v", err)
	}
	if !f.svc.ValidateAccessToken(ctx, second.AccessToken) {
		t.Error("other session should be unaffected")
	}
	if err := f.svc.RevokeSession(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("missing session: err = %v, want ErrSessionNotFound", err)
	}
}

func TestSessions_GetAndRevokeAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	a := f.createAccount(t, "yul", "")
	first := f.login(t, "yul")
	second := f.login(t, "yul")

	sess, err := f.svc.GetSession(ctx, first.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.AccountID != a.ID {
		t.Errorf("session account = %q, want %q", sess.AccountID, a.ID)
	}
	if _, err := f.svc.GetSession(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("missing session: err = %v", err)
	}

	if err := f.svc.RevokeAllSessions(ctx, a.ID); err != nil {
		t.Fatalf("RevokeAllSessions: %v", err)
	}
	for _, pair := range []*TokenPair{first, second} {
		if f.svc.ValidateAccessToken(ctx, pair.AccessToken) {
			t.Error("access token should be invalid after revoke-all")
		}
		if _, err := f.svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Errorf("refresh after revoke-all: err = %v", err)
		}
	}
	if sessions, _ := f.svc.ListSessions(ctx, a.ID); len(sessions) != 0 {
		t.Errorf("live sessions = %d, want 0", len(sessions))
	}
}
