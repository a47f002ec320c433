package rpc

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	accountservice "identity-provider/backend/internal/account/service"
	identityservice "identity-provider/backend/internal/identity/service"
	"identity-provider/backend/internal/mfa"
	"identity-provider/backend/internal/password"
	passwordresetservice "identity-provider/backend/internal/passwordreset/service"
)

var errorCodes = []struct {
	err  error
	code codes.Code
}{
	{identityservice.ErrInvalidCredentials, codes.Unauthenticated},
	{identityservice.ErrInvalidAccessToken, codes.Unauthenticated},
	{identityservice.ErrInvalidRefreshToken, codes.Unauthenticated},
	{identityservice.ErrInvalidMFAChallenge, codes.Unauthenticated},
	{identityservice.ErrAccountDisabled, codes.PermissionDenied},
	{identityservice.ErrAccountLocked, codes.PermissionDenied},
	{identityservice.ErrSessionNotFound, codes.NotFound},
	{mfa.ErrInvalidMFACode, codes.Unauthenticated},
	{mfa.ErrMFANotEnabled, codes.FailedPrecondition},
	{mfa.ErrMFAUnavailable, codes.FailedPrecondition},
	{mfa.ErrAccountNotFound, codes.NotFound},
	{passwordresetservice.ErrRateLimited, codes.ResourceExhausted},
	{passwordresetservice.ErrTokenNotFound, codes.InvalidArgument},
	{passwordresetservice.ErrTokenAlreadyUsed, codes.FailedPrecondition},
	{passwordresetservice.ErrTokenExpired, codes.FailedPrecondition},
	{accountservice.ErrAccountNotFound, codes.NotFound},
	{accountservice.ErrAccountExists, codes.AlreadyExists},
	{accountservice.ErrInvalidCurrentPassword, codes.InvalidArgument},
	{accountservice.ErrInvalidAccount, codes.InvalidArgument},
	{context.Canceled, codes.Canceled},
	{context.DeadlineExceeded, codes.DeadlineExceeded},
}

// Error converts an engine error into a gRPC status error. Unknown errors become Internal with
// a generic message so storage details do not reach clients.
func Error(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var pv *password.PolicyViolationError
	if errors.As(err, &pv) {
		return status.Error(codes.InvalidArgument, "password policy violation: "+strings.Join(pv.Codes(), ","))
	}
	for _, m := range errorCodes {
		if errors.Is(err, m.err) {
			return status.Error(m.code, m.err.Error())
		}
	}
	return status.Error(codes.Internal, "internal error")
}
