package service

import "errors"

// Named failures of the use-case layer. Persistence errors are wrapped
// with context instead and classify as KindInternal.
var (
	ErrValidation           = errors.New("validation failed")
	ErrEmailInUse           = errors.New("email already registered")
	ErrStoreNotFound        = errors.New("store not found")
	ErrPromotionNotFound    = errors.New("promotion not found")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccountInactive      = errors.New("account is inactive")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenInvalid  = errors.New("refresh token expired or revoked")
	ErrPrincipalUnavailable = errors.New("account not found or inactive")
	ErrInvalidAccessToken   = errors.New("invalid or expired access token")
	ErrInvalidPushToken     = errors.New("invalid push token")
	ErrInvalidPlatform      = errors.New("platform must be ios or android")
	ErrForbidden            = errors.New("forbidden")
)

// Kind is the coarse class of a use-case error.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindStateConflict
	KindUnauthorized
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindStateConflict:
		return "state_conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	}
	return "internal"
}

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidPushToken), errors.Is(err, ErrInvalidPlatform):
		return KindValidation
	case errors.Is(err, ErrStoreNotFound), errors.Is(err, ErrPromotionNotFound):
		return KindNotFound
	case errors.Is(err, ErrEmailInUse):
		return KindConflict
	case errors.Is(err, ErrRefreshTokenInvalid), errors.Is(err, ErrPrincipalUnavailable), errors.Is(err, ErrAccountInactive):
		return KindStateConflict
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrRefreshTokenNotFound), errors.Is(err, ErrInvalidAccessToken):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	}
	return KindInternal
}

func invalidInput(msg string) error {
	return &validationError{msg: msg}
}

type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }
func (e *validationError) Unwrap() error { return ErrValidation }
