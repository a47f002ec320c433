// Package mfa implements TOTP second-factor enrollment and verification.
package mfa

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTP parameters. Authenticator apps assume these; changing them invalidates enrollments.
const (
	Period     = 30
	Digits     = otp.DigitsSix
	Algorithm  = otp.AlgorithmSHA1
	SecretSize = 20
)

// GenerateKey creates a new random TOTP key for label under issuer.
func GenerateKey(issuer, label string) (*otp.Key, error) {
	return totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: label,
		Period:      Period,
		SecretSize:  SecretSize,
		Digits:      Digits,
		Algorithm:   Algorithm,
	})
}

// ProvisioningURI derives the otpauth:// URI for an existing secret. It is never stored.
func ProvisioningURI(secret, issuer, label string) string {
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("algorithm", Algorithm.String())
	v.Set("digits", Digits.String())
	v.Set("period", strconv.Itoa(Period))
	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + issuer + ":" + label,
		RawQuery: v.Encode(),
	}
	return u.String()
}

// ValidateCode checks code against secret at t, accepting skew adjacent periods on each side.
func ValidateCode(code, secret string, t time.Time, skew uint) bool {
	code = strings.TrimSpace(code)
	if code == "" || secret == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, t.UTC(), totp.ValidateOpts{
		Period:    Period,
		Skew:      skew,
		Digits:    Digits,
		Algorithm: Algorithm,
	})
	return err == nil && ok
}

// CodeAt returns the code for secret at t.
func CodeAt(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t.UTC(), totp.ValidateOpts{
		Period:    Period,
		Digits:    Digits,
		Algorithm: Algorithm,
	})
}
