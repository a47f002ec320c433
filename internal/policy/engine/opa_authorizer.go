// Package engine evaluates RPC authorization with OPA Rego. A built-in module grants any
// authenticated caller the self-service methods and the admin role everything; enabled
// policies from the repository are compiled into the same package and may add allow rules.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"

	"identity-provider/backend/internal/policy/repository"
)

// PolicyPackage is the Rego package every stored policy must declare.
const PolicyPackage = "data.idp.authz"

const allowQuery = "data.idp.authz.allow"

// DefaultPolicy is always compiled. Services listed in admin_services require the admin role.
const DefaultPolicy = `package idp.authz

default allow := false

admin_services := {"idp.account.v1.AccountService", "idp.audit.v1.AuditService", "idp.policy.v1.PolicyService"}

service := split(trim_prefix(input.method, "/"), "/")[0]

allow if {
	input.subject != ""
	not admin_services[service]
}

allow if {
	input.subject != ""
	"admin" in input.roles
}
`

// ErrInvalidPolicy wraps parse and compile failures of a stored policy.
var ErrInvalidPolicy = errors.New("invalid authorization policy")

// OPAAuthorizer answers Allow from a prepared Rego query. Reload recompiles it from the
// repository; until the first Reload only DefaultPolicy is in effect.
type OPAAuthorizer struct {
	repo repository.Repository
	log  *zap.Logger

	mu      sync.RWMutex
	query   *rego.PreparedEvalQuery
	modules int
}

// NewOPAAuthorizer returns an authorizer over repo. repo may be nil, in which case only the
// built-in policy applies.
func NewOPAAuthorizer(repo repository.Repository, log *zap.Logger) *OPAAuthorizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &OPAAuthorizer{repo: repo, log: log}
}

// Reload compiles DefaultPolicy together with every enabled stored policy and swaps the
// prepared query in. If loading or compiling fails, the previous query stays active (or the
// built-in policy alone when none was loaded yet) and the error is returned.
func (a *OPAAuthorizer) Reload(ctx context.Context) error {
	modules := map[string]string{"default.rego": DefaultPolicy}
	var loadErr error
	if a.repo != nil {
		policies, err := a.repo.ListEnabled(ctx)
		if err != nil {
			loadErr = fmt.Errorf("load policies: %w", err)
		}
		for _, p := range policies {
			if p.Enabled && p.Rules != "" {
				modules["policy_"+p.ID+".rego"] = p.Rules
			}
		}
	}
	if loadErr == nil {
		q, err := prepare(ctx, modules)
		if err == nil {
			a.mu.Lock()
			a.query = &q
			a.modules = len(modules) - 1
			a.mu.Unlock()
			a.log.Info("authorization policies loaded", zap.Int("stored_policies", len(modules)-1))
			return nil
		}
		loadErr = err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.query == nil {
		q, err := prepare(ctx, map[string]string{"default.rego": DefaultPolicy})
		if err != nil {
			return fmt.Errorf("compile default policy: %w", err)
		}
		a.query = &q
		a.modules = 0
	}
	a.log.Error("authorization policy reload failed, keeping previous rules", zap.Error(loadErr))
	return loadErr
}

// StoredPolicies returns how many stored policies the active query was compiled from.
func (a *OPAAuthorizer) StoredPolicies() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.modules
}

// Allow reports whether subject holding roles may call the full gRPC method name.
func (a *OPAAuthorizer) Allow(ctx context.Context, method, subject string, roles []string) (bool, error) {
	q, err := a.current(ctx)
	if err != nil {
		return false, err
	}
	if roles == nil {
		roles = []string{}
	}
	input := map[string]interface{}{
		"method":  method,
		"subject": subject,
		"roles":   roles,
	}
	rs, err := q.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("eval authorization: %w", err)
	}
	return rs.Allowed(), nil
}

// HealthCheck verifies the active query evaluates. It does not touch the repository.
func (a *OPAAuthorizer) HealthCheck(ctx context.Context) error {
	q, err := prepare(ctx, map[string]string{"default.rego": DefaultPolicy})
	if err != nil {
		return fmt.Errorf("compile default policy: %w", err)
	}
	rs, err := q.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"method":  "/grpc.health.v1.Health/Check",
		"subject": "healthcheck",
		"roles":   []string{},
	}))
	if err != nil {
		return fmt.Errorf("eval default policy: %w", err)
	}
	if !rs.Allowed() {
		return errors.New("default policy denied an authenticated caller")
	}
	return nil
}

func (a *OPAAuthorizer) current(ctx context.Context) (*rego.PreparedEvalQuery, error) {
	a.mu.RLock()
	q := a.query
	a.mu.RUnlock()
	if q != nil {
		return q, nil
	}
	// A failed reload still installs the built-in policy.
	_ = a.Reload(ctx)
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.query == nil {
		return nil, errors.New("authorization policy not loaded")
	}
	return a.query, nil
}

// Validate parses rules as a stored policy and compiles it alongside DefaultPolicy.
func Validate(ctx context.Context, rules string) error {
	mod, err := ast.ParseModule("candidate.rego", rules)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if mod == nil {
		return fmt.Errorf("%w: empty module", ErrInvalidPolicy)
	}
	if got := mod.Package.Path.String(); got != PolicyPackage {
		return fmt.Errorf("%w: package must be %s, got %s", ErrInvalidPolicy, PolicyPackage, got)
	}
	if _, err := prepare(ctx, map[string]string{"default.rego": DefaultPolicy, "candidate.rego": rules}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	return nil
}

func prepare(ctx context.Context, modules map[string]string) (rego.PreparedEvalQuery, error) {
	compiler, err := ast.CompileModules(modules)
	if err != nil {
		return rego.PreparedEvalQuery{}, fmt.Errorf("compile policies %v: %w", moduleNames(modules), err)
	}
	return rego.New(
		rego.Query(allowQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
}

func moduleNames(modules map[string]string) []string {
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
