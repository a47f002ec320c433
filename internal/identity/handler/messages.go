package handler

import (
	"time"

	identityservice "identity-provider/backend/internal/identity/service"
)

// Empty is the request or response of calls that carry no data.
type Empty struct{}

type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// LoginResponse carries tokens, or a challenge when a second factor is required.
type LoginResponse struct {
	Tokens             *TokenPair `json:"tokens,omitempty"`
	MFARequired        bool       `json:"mfa_required"`
	ChallengeID        string     `json:"challenge_id,omitempty"`
	ChallengeExpiresAt *time.Time `json:"challenge_expires_at,omitempty"`
}

type CompleteMFALoginRequest struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type ValidateTokenRequest struct {
	AccessToken string `json:"access_token"`
}

type ValidateTokenResponse struct {
	Valid bool `json:"valid"`
}

type IntrospectRequest struct {
	Token string `json:"token"`
}

// IntrospectResponse follows the RFC 7662 member names. Inactive tokens carry only Active.
type IntrospectResponse struct {
	Active    bool     `json:"active"`
	Subject   string   `json:"sub,omitempty"`
	Username  string   `json:"username,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	TokenType string   `json:"token_type,omitempty"`
	SessionID string   `json:"sid,omitempty"`
	TokenID   string   `json:"jti,omitempty"`
	IssuedAt  int64    `json:"iat,omitempty"`
	ExpiresAt int64    `json:"exp,omitempty"`
}

type RevokeRefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RequestPasswordResetRequest struct {
	Identifier string `json:"identifier"`
}

type CompletePasswordResetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// EnrollMFAResponse returns the secret once, for manual entry, with its otpauth URI.
type EnrollMFAResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
}

type DisableMFARequest struct {
	Code string `json:"code"`
}

// UserInfoResponse is the caller's profile. Roles are current, not the token snapshot.
type UserInfoResponse struct {
	AccountID  string   `json:"sub"`
	Username   string   `json:"preferred_username"`
	Email      string   `json:"email,omitempty"`
	GivenName  string   `json:"given_name,omitempty"`
	FamilyName string   `json:"family_name,omitempty"`
	Roles      []string `json:"roles"`
	MFAEnabled bool     `json:"mfa_enabled"`
}

type MFAStatusResponse struct {
	Enabled         bool   `json:"enabled"`
	ProvisioningURI string `json:"provisioning_uri,omitempty"`
}

type VerifyMFARequest struct {
	Code string `json:"code"`
}

type VerifyMFAResponse struct {
	Valid bool `json:"valid"`
}

// TokenPair is the wire form of an issued token pair.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	SessionID        string    `json:"session_id"`
	AccountID        string    `json:"account_id"`
}

func tokenPairToWire(p *identityservice.TokenPair) *TokenPair {
	if p == nil {
		return nil
	}
	return &TokenPair{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		TokenType:        p.TokenType,
		ExpiresIn:        p.ExpiresIn,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
		SessionID:        p.SessionID,
		AccountID:        p.AccountID,
	}
}

func userInfoToWire(in *identityservice.UserInfo) *UserInfoResponse {
	roles := in.Roles
	if roles == nil {
		roles = []string{}
	}
	return &UserInfoResponse{
		AccountID:  in.AccountID,
		Username:   in.Username,
		Email:      in.Email,
		GivenName:  in.GivenName,
		FamilyName: in.FamilyName,
		Roles:      roles,
		MFAEnabled: in.MFAEnabled,
	}
}

func introspectionToWire(in identityservice.Introspection) *IntrospectResponse {
	if !in.Active {
		return &IntrospectResponse{}
	}
	out := &IntrospectResponse{
		Active:    true,
		Subject:   in.Subject,
		Username:  in.Username,
		Roles:     in.Roles,
		TokenType: in.TokenType,
		SessionID: in.SessionID,
		TokenID:   in.TokenID,
	}
	if !in.IssuedAt.IsZero() {
		out.IssuedAt = in.IssuedAt.Unix()
	}
	if !in.ExpiresAt.IsZero() {
		out.ExpiresAt = in.ExpiresAt.Unix()
	}
	return out
}
