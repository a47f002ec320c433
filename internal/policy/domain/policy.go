package domain

import (
	"errors"
	"strings"
	"time"
)

// Policy is a stored Rego module that extends the built-in authorization rules.
// Rules must declare the authorization package and may add allow rules; they cannot
// redeclare the package default.
type Policy struct {
	ID        string
	Name      string
	Rules     string
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the fields required before a policy is stored.
func (p *Policy) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("policy name is required")
	}
	if strings.TrimSpace(p.Rules) == "" {
		return errors.New("policy rules are required")
	}
	return nil
}
