package errors

import (
	"errors"
)

// Kind groups sentinel errors by how the HTTP boundary reports them.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindForbidden
	KindNotFound
	KindConflict
	KindTooManyRequests
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrOTPConfiguration = errors.New("otp length must be between 1 and 10")

	ErrTooManyLoginAttempts = errors.New("too many failed login attempts")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccountUnverified    = errors.New("account email is not verified")
	ErrUserExists           = errors.New("user already exists")
	ErrUserNotFound         = errors.New("user not found")
	ErrForbidden            = errors.New("insufficient role")

	ErrTokenMalformed         = errors.New("token is malformed")
	ErrTokenSignatureInvalid  = errors.New("token signature is invalid")
	ErrTokenExpired           = errors.New("token is expired")
	ErrTokenInvalid           = errors.New("token is invalid")
	ErrAuthenticationRequired = errors.New("authentication required")

	ErrRefreshInvalid  = errors.New("refresh token is invalid or already used")
	ErrSessionNotFound = errors.New("session not found")

	ErrInvalidOrExpiredOTP = errors.New("invalid or expired otp")
	ErrOTPMaxAttempts      = errors.New("maximum otp attempts exceeded, try again later")
	ErrOTPBlocked          = errors.New("otp verification is temporarily blocked")
	ErrPurposeMismatch     = errors.New("otp purpose not allowed for this operation")

	ErrSelfFollow       = errors.New("users cannot follow themselves")
	ErrAlreadyFollowing = errors.New("already following this user")
	ErrNotFollowing     = errors.New("not following this user")
)

var kinds = map[error]Kind{
	ErrValidation:       KindValidation,
	ErrOTPConfiguration: KindInternal,

	ErrTooManyLoginAttempts: KindTooManyRequests,
	ErrInvalidCredentials:   KindAuthentication,
	ErrAccountUnverified:    KindForbidden,
	ErrUserExists:           KindConflict,
	ErrUserNotFound:         KindNotFound,
	ErrForbidden:            KindForbidden,

	ErrTokenMalformed:         KindAuthentication,
	ErrTokenSignatureInvalid:  KindAuthentication,
	ErrTokenExpired:           KindAuthentication,
	ErrTokenInvalid:           KindAuthentication,
	ErrAuthenticationRequired: KindAuthentication,

	ErrRefreshInvalid:  KindAuthentication,
	ErrSessionNotFound: KindNotFound,

	ErrInvalidOrExpiredOTP: KindValidation,
	ErrOTPMaxAttempts:      KindTooManyRequests,
	ErrOTPBlocked:          KindTooManyRequests,
	ErrPurposeMismatch:     KindValidation,

	ErrSelfFollow:       KindValidation,
	ErrAlreadyFollowing: KindConflict,
	ErrNotFollowing:     KindNotFound,
}

// KindOf walks the wrap chain and returns the kind of the first known sentinel.
// Unknown errors are internal.
func KindOf(err error) Kind {
	if sentinel := Sentinel(err); sentinel != nil {
		return kinds[sentinel]
	}
	return KindInternal
}

// Sentinel returns the package sentinel err wraps, or nil. Its message is
// safe to show to clients.
func Sentinel(err error) error {
	if err == nil {
		return nil
	}
	for sentinel := range kinds {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

// IsSessionInvalidating reports errors after which the client's auth cookies
// are useless and must be dropped. Failed logins and server errors are not
// among them.
func IsSessionInvalidating(err error) bool {
	return errors.Is(err, ErrRefreshInvalid) ||
		errors.Is(err, ErrTokenMalformed) ||
		errors.Is(err, ErrTokenSignatureInvalid) ||
		errors.Is(err, ErrTokenInvalid) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrAuthenticationRequired)
}
