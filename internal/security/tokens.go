package security

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenMalformed is returned when a token cannot be decoded or carries invalid claims.
	ErrTokenMalformed = errors.New("malformed token")
	// ErrTokenSignature is returned when a token's signature does not verify against any known key.
	ErrTokenSignature = errors.New("invalid token signature")
	// ErrTokenExpired is returned when a correctly signed token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrWeakSigningKey is returned when the signing secret is shorter than MinSigningKeyBytes.
	ErrWeakSigningKey = errors.New("signing key must be at least 32 bytes")
)

// MinSigningKeyBytes is the minimum HMAC secret length accepted by NewTokenCodec.
const MinSigningKeyBytes = 32

// KeyID returns the kid stamped on tokens signed with secret: the first 8 bytes of its SHA-256,
// hex encoded. The same secret always yields the same kid, so tokens keep naming their key after
// the secret moves from signing to verify-only.
func KeyID(secret []byte) string {
	sum := sha256.Sum256(secret)
	return hex.EncodeToString(sum[:8])
}

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the JWT payload for both token types. Roles and Username are a snapshot taken at
// issuance; they are not re-resolved while the token is live.
type Claims struct {
	jwt.RegisteredClaims
	Type      TokenType `json:"type"`
	Username  string    `json:"username,omitempty"`
	Roles     []string  `json:"roles,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
}

// IssuedToken is a signed token together with its jti and expiry.
type IssuedToken struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// TokenCodec issues and parses HS256-signed tokens. It holds only immutable key material.
type TokenCodec struct {
	signingKey []byte
	keyID      string
	verifyKeys map[string][]byte
	issuer     string
	now        func() time.Time
}

// CodecOption configures a TokenCodec.
type CodecOption func(*TokenCodec)

// WithVerificationKeys registers verify-only secrets under their KeyID. Tokens signed by a
// previous secret stay valid until they expire while new tokens are signed by the active one.
func WithVerificationKeys(keys ...[]byte) CodecOption {
	return func(c *TokenCodec) {
		for _, k := range keys {
			if len(k) == 0 {
				continue
			}
			c.verifyKeys[KeyID(k)] = append([]byte(nil), k...)
		}
	}
}

// WithClock overrides the time source used for iat/exp and expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewTokenCodec returns a codec that signs with secret and stamps issuer on every token.
func NewTokenCodec(secret []byte, issuer string, opts ...CodecOption) (*TokenCodec, error) {
	if len(secret) < MinSigningKeyBytes {
		return nil, ErrWeakSigningKey
	}
	c := &TokenCodec{
		signingKey: append([]byte(nil), secret...),
		keyID:      KeyID(secret),
		verifyKeys: make(map[string][]byte),
		issuer:     issuer,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// KeyID returns the kid stamped on tokens issued by c.
func (c *TokenCodec) KeyID() string {
	return c.keyID
}

// Issuer returns the iss claim stamped on issued tokens.
func (c *TokenCodec) Issuer() string {
	return c.issuer
}

// Issue signs a token for subject with the given type and lifetime. Username, Roles, and
// SessionID are copied from extra; registered claims in extra are ignored.
func (c *TokenCodec) Issue(subject string, typ TokenType, ttl time.Duration, extra Claims) (IssuedToken, error) {
	if subject == "" {
		return IssuedToken{}, fmt.Errorf("issue %s token: empty subject", typ)
	}
	if ttl <= 0 {
		return IssuedToken{}, fmt.Errorf("issue %s token: non-positive ttl", typ)
	}
	now := c.now().UTC()
	jti := uuid.New().String()
	expiresAt := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   subject,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Type:      typ,
		Username:  extra.Username,
		SessionID: extra.SessionID,
	}
	if len(extra.Roles) > 0 {
		claims.Roles = append([]string(nil), extra.Roles...)
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	t.Header["kid"] = c.keyID
	signed, err := t.SignedString(c.signingKey)
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{Token: signed, ID: jti, ExpiresAt: expiresAt}, nil
}

// Parse verifies signature, algorithm, issuer, and expiry together and returns the claims.
// Errors are ErrTokenMalformed, ErrTokenSignature, or ErrTokenExpired.
func (c *TokenCodec) Parse(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrTokenMalformed
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, c.keyFor,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, classifyParseError(err)
	}
	if !parsed.Valid || claims.ID == "" || claims.Subject == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// ExtractID returns the token's jti, or "" when the token does not parse.
func (c *TokenCodec) ExtractID(token string) string {
	claims, err := c.Parse(token)
	if err != nil {
		return ""
	}
	return claims.ID
}

func (c *TokenCodec) keyFor(t *jwt.Token) (interface{}, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" || kid == c.keyID {
		return c.signingKey, nil
	}
	if k, ok := c.verifyKeys[kid]; ok {
		return k, nil
	}
	return nil, fmt.Errorf("unknown key id %q", kid)
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrTokenSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrTokenMalformed
	}
}
