// Package password validates candidate passwords against the configured rule set.
package password

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

// ErrPolicyViolation is matched by every *PolicyViolationError through errors.Is.
var ErrPolicyViolation = errors.New("password policy violation")

// MaxBytes is the longest password, in bytes, that bcrypt hashes without truncation. It applies
// whatever MaxLength is set to.
const MaxBytes = 72

// SpecialCharacters is the set that satisfies RequireSpecial.
const SpecialCharacters = "!@#$%^&*()-_=+[]{}|;:',.<>?/`~"

// Violation codes.
const (
	CodeRequired  = "required"
	CodeMinLength = "min_length"
	CodeMaxLength = "max_length"
	CodeUpper     = "uppercase"
	CodeLower     = "lowercase"
	CodeDigit     = "digit"
	CodeSpecial   = "special"
	CodeWeak      = "weak_password"
)

// Violation is one broken rule.
type Violation struct {
	Code    string
	Message string
}

// PolicyViolationError carries the complete set of violations for one password.
type PolicyViolationError struct {
	Violations []Violation
}

func (e *PolicyViolationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Message
	}
	return "password policy violation: " + strings.Join(msgs, "; ")
}

// Is makes errors.Is(err, ErrPolicyViolation) true.
func (e *PolicyViolationError) Is(target error) bool {
	return target == ErrPolicyViolation
}

// Codes returns the violation codes in order.
func (e *PolicyViolationError) Codes() []string {
	out := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		out[i] = v.Code
	}
	return out
}

// Policy is the password rule set. Length is counted in runes. MaxLength and MinStrength are
// disabled when zero; MaxBytes always applies.
type Policy struct {
	MinLength      int
	MaxLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
	// MinStrength is the minimum zxcvbn score (1–4).
	MinStrength int
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:      8,
		MaxLength:      MaxBytes,
		RequireUpper:   true,
		RequireLower:   true,
		RequireDigit:   true,
		RequireSpecial: true,
	}
}

// Validate returns every rule pw breaks; an empty result means pw is acceptable. userInputs
// (username, email, names) are penalized by the strength check. An empty password yields only
// CodeRequired.
func (p Policy) Validate(pw string, userInputs ...string) []Violation {
	if pw == "" {
		return []Violation{{Code: CodeRequired, Message: "password is required"}}
	}
	var out []Violation
	n := utf8.RuneCountInString(pw)
	if n < p.MinLength {
		out = append(out, Violation{CodeMinLength, fmt.Sprintf("password must be at least %d characters", p.MinLength)})
	}
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
		if strings.ContainsRune(SpecialCharacters, r) {
			hasSpecial = true
		}
	}
	if p.RequireUpper && !hasUpper {
		out = append(out, Violation{CodeUpper, "password must contain at least one uppercase letter"})
	}
	if p.RequireLower && !hasLower {
		out = append(out, Violation{CodeLower, "password must contain at least one lowercase letter"})
	}
	if p.RequireDigit && !hasDigit {
		out = append(out, Violation{CodeDigit, "password must contain at least one digit"})
	}
	if p.RequireSpecial && !hasSpecial {
		out = append(out, Violation{CodeSpecial, "password must contain at least one special character"})
	}
	switch {
	case p.MaxLength > 0 && n > p.MaxLength:
		out = append(out, Violation{CodeMaxLength, fmt.Sprintf("password must not exceed %d characters", p.MaxLength)})
	case len(pw) > MaxBytes:
		out = append(out, Violation{CodeMaxLength, fmt.Sprintf("password must not exceed %d bytes", MaxBytes)})
	}
	if p.MinStrength > 0 && n <= 100 {
		min := p.MinStrength
		if min > 4 {
			min = 4
		}
		if zxcvbn.PasswordStrength(pw, userInputs).Score < min {
			out = append(out, Violation{CodeWeak, "password is too weak; choose a less predictable value"})
		}
	}
	return out
}

// Check returns a *PolicyViolationError when pw breaks any rule, else nil.
func (p Policy) Check(pw string, userInputs ...string) error {
	if v := p.Validate(pw, userInputs...); len(v) > 0 {
		return &PolicyViolationError{Violations: v}
	}
	return nil
}
