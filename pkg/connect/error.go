package connect

import (
	"errors"
	"fmt"
	"time"
)

// Error exposes methods useful for categorizing failures of the vendor API.
type Error interface {
	error

	// Temporary returns true if the Error might be the result of a transient
	// condition. For example, the backend throttles status refreshes to protect
	// the vehicle battery, and throttled requests can be retried later without
	// the account owner doing anything.
	Temporary() bool
}

var (
	// ErrInvalidCredentials indicates the identity provider rejected the email/password
	// combination.
	ErrInvalidCredentials = NewError("login rejected: invalid email address or password", false)
	// ErrEULAPending indicates the account owner must accept updated terms and conditions
	// in the vendor app or web portal before the library can sign in. Retrying without
	// that out-of-band step cannot succeed.
	ErrEULAPending = NewError("login rejected: terms and conditions must be accepted in the MySkoda app or portal", false)
	// ErrTooManyRedirects indicates the authorization redirect chain did not reach the
	// client's redirect URI within the permitted number of hops.
	ErrTooManyRedirects = NewError("authorization failed: too many redirects", false)
	// ErrUnexpectedRedirect indicates an intermediate authorization response carried no
	// Location header. This typically means the account has no vehicle with connect
	// services enabled.
	ErrUnexpectedRedirect = NewError("authorization response missing Location header", false)
	// ErrInvalidPIN indicates the provided S-PIN is not an even-length string of hex
	// digits and cannot be hashed for the security-token challenge.
	ErrInvalidPIN = NewError("s-pin must decode to a whole number of hex bytes", false)
	// ErrNotAuthenticated indicates an operation that requires a signed-in session was
	// invoked before Login, or after Logout.
	ErrNotAuthenticated = NewError("not signed in", false)
	// ErrNoContent indicates the backend answered 204. The position endpoint does this
	// while the vehicle is moving.
	ErrNoContent = NewError("no content available", false)
	// ErrUnknownClient indicates a token or header was requested for an API client name
	// that is not registered.
	ErrUnknownClient = NewError("unknown API client", false)
)

// AuthError is the generic authorization failure wrapper. Specific conditions use
// the dedicated types below; everything else about the sign-in flow surfaces as an
// AuthError.
type AuthError struct {
	Err               error
	PossibleTemporary bool
}

// NewError returns an AuthError wrapping a new error with the given message.
func NewError(message string, temporary bool) error {
	return &AuthError{Err: errors.New(message), PossibleTemporary: temporary}
}

func (e *AuthError) Error() string {
	return e.Err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func (e *AuthError) Temporary() bool {
	return e.PossibleTemporary
}

// ConfigFetchError indicates the OpenID provider configuration endpoint did not
// return a usable document.
type ConfigFetchError struct {
	Status int
}

func (e *ConfigFetchError) Error() string {
	return fmt.Sprintf("fetching openid configuration returned HTTP %d", e.Status)
}

func (e *ConfigFetchError) Temporary() bool {
	return e.Status >= 500
}

// MalformedFormError indicates a login page could not be parsed into either of the
// two recognized form shapes.
type MalformedFormError struct {
	Reason string
}

func (e *MalformedFormError) Error() string {
	return "malformed login form: " + e.Reason
}

func (e *MalformedFormError) Temporary() bool {
	return false
}

// AccountLockedError indicates the identity provider has temporarily disabled
// login for the account, usually after repeated failures. RetryAfter carries the
// provider's advertised wait, when known.
type AccountLockedError struct {
	RetryAfter time.Duration
}

func (e *AccountLockedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("account login is temporarily disabled for another %s", e.RetryAfter)
	}
	return "account login is temporarily disabled"
}

func (e *AccountLockedError) Temporary() bool {
	return true
}

// ThrottledError indicates the backend returned HTTP 429. For vehicle-status
// refreshes this typically means the rate limit is spent until the end of the next
// trip.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("request throttled, retry after %s", e.RetryAfter)
	}
	return "request throttled by the backend"
}

func (e *ThrottledError) Temporary() bool {
	return true
}

// ServiceUnavailableError indicates the backend answered with a 5xx status.
type ServiceUnavailableError struct {
	Status int
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("service unavailable (HTTP %d)", e.Status)
}

func (e *ServiceUnavailableError) Temporary() bool {
	return true
}

// TokenExchangeError indicates a code, refresh-token, or id-token grant failed.
type TokenExchangeError struct {
	Grant   string
	Status  int
	Message string
}

func (e *TokenExchangeError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s token exchange returned HTTP %d: %s", e.Grant, e.Status, e.Message)
	}
	return fmt.Sprintf("%s token exchange returned HTTP %d", e.Grant, e.Status)
}

func (e *TokenExchangeError) Temporary() bool {
	return e.Status >= 500
}

// SecurityTokenExchangeError indicates the security-pin challenge completion did
// not yield a one-shot security token. A wrong S-PIN is the most common cause.
type SecurityTokenExchangeError struct {
	Status  int
	Message string
}

func (e *SecurityTokenExchangeError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("security token exchange failed (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("security token exchange failed (HTTP %d)", e.Status)
}

func (e *SecurityTokenExchangeError) Temporary() bool {
	return e.Status >= 500
}

// HTTPError is returned for backend responses that do not map to a more specific
// kind above.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("received HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("received HTTP %d", e.Status)
}

func (e *HTTPError) Temporary() bool {
	switch e.Status {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Temporary returns true if err indicates a transient condition that does not
// require user action to resolve.
func Temporary(err error) bool {
	var cerr Error
	if errors.As(err, &cerr) {
		return cerr.Temporary()
	}
	return false
}

// IsUnauthorized returns true if err is an HTTPError with status 401, the signal
// that the bearer token attached to a request is no longer accepted.
func IsUnauthorized(err error) bool {
	var herr *HTTPError
	return errors.As(err, &herr) && herr.Status == 401
}
