package service

import "errors"

// Domain error codes surfaced verbatim to the client. Handlers translate
// them to HTTP statuses: credential and token errors become 401, failed
// persistence becomes 400.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("INVALID_TOKEN")
	ErrTokenExpired       = errors.New("TOKEN_EXPIRED")
	ErrEmailNotRegistered = errors.New("EMAIL_NOT_REGISTERED")
	ErrInvalidUpdates     = errors.New("INVALID_UPDATES")
	ErrResetTokenExpired  = errors.New("PASSWORD_RESET_TOKEN_EXPIRED")
	ErrUpdatingPassword   = errors.New("ERROR_UPDATING_PASSWORD")
)
