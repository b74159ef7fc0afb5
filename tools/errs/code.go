package errs

// Relay error taxonomy. Codes are part of the wire contract: the client
// branches its retry policy on them, so they must stay stable.
const (
	CodeValidation    = 1001 // malformed request, never retried
	CodeAuthorization = 1002 // device revoked / unauthenticated, never retried
	CodeTransient     = 1003 // network or server fault, retryable with backoff
	CodeRangeTooLarge = 1004 // repair range above cap, caller must split
	CodeRecordExists  = 1101
	CodeTokenExpired  = 1201
)

var (
	ErrValidation    = NewCodeError(CodeValidation, "validation failed")
	ErrAuthorization = NewCodeError(CodeAuthorization, "device revoked or unauthenticated")
	ErrTransient     = NewCodeError(CodeTransient, "transient relay fault")
	ErrRangeTooLarge = NewCodeError(CodeRangeTooLarge, "repair range too large")
	ErrRecordExists  = NewCodeError(CodeRecordExists, "record already exists")
	ErrTokenExpired  = NewCodeError(CodeTokenExpired, "token missing or expired")
)

// IsRetryable reports whether the scheduler may retry after err.
// Validation, authorization and range errors are terminal by contract;
// everything else (including plain network errors) counts as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch CodeOf(err) {
	case CodeValidation, CodeAuthorization, CodeRangeTooLarge:
		return false
	}
	return true
}

// CodeOf extracts the taxonomy code from err, or 0 for non-code errors.
func CodeOf(err error) int {
	if err == nil {
		return 0
	}
	if ce, ok := Unwrap(err).(*CodeError); ok {
		return ce.Code
	}
	if ce, ok := Unwrap(err).(CodeErrorI); ok {
		return ce.ECode()
	}
	return 0
}

func IsValidation(err error) bool    { return CodeOf(err) == CodeValidation }
func IsAuthorization(err error) bool { return CodeOf(err) == CodeAuthorization }
func IsTransient(err error) bool     { return CodeOf(err) == CodeTransient }
func IsRangeTooLarge(err error) bool { return CodeOf(err) == CodeRangeTooLarge }
