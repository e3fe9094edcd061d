package throttle

import (
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

// Code is a short, closed-enumeration error code attached to every *Error.
type Code string

// Recognized error codes.
const (
	CodeInvalidConfiguration   Code = "INVALID_CONFIGURATION"
	CodeMissingRequiredConfig  Code = "MISSING_REQUIRED_CONFIG"
	CodeRedisConnectionFailed  Code = "REDIS_CONNECTION_FAILED"
	CodeRedisOperationFailed   Code = "REDIS_OPERATION_FAILED"
	CodeRedisFunctionsLoadFail Code = "REDIS_FUNCTIONS_LOAD_FAILED"
	CodeStorageOperationFailed Code = "STORAGE_OPERATION_FAILED"
)

// Kind is the top-level discriminant of the Error sum type (spec §7).
type Kind int

const (
	// KindConfiguration is a caller-side contract violation: missing or
	// out-of-range config, or an invalid argument to Increment/Reset. Never
	// retried internally; always propagated to the caller.
	KindConfiguration Kind = iota

	// KindRedisConnection means the store was unreachable, timed out,
	// refused the connection, or the network otherwise failed.
	KindRedisConnection

	// KindOperation covers protocol, script, or other store-level failures
	// that are not connectivity problems.
	KindOperation
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "Configuration"
	case KindRedisConnection:
		return "RedisConnection"
	case KindOperation:
		return "Operation"
	default:
		return "Unknown"
	}
}

// Error is the sum-type error described in spec §7: a kind, a closed code,
// an optional offending field (Configuration errors only), and an optional
// wrapped cause.
type Error struct {
	Kind    Kind
	Code    Code
	Field   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("throttle: ")
	b.WriteString(e.Kind.String())
	b.WriteByte('(')
	b.WriteString(string(e.Code))
	b.WriteByte(')')
	if e.Field != "" {
		b.WriteString(" field=")
		b.WriteString(e.Field)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// NewConfigurationError builds a Configuration error, optionally naming the
// offending field (empty for argument errors with no single field, such as
// an empty identity).
func NewConfigurationError(code Code, field, message string) *Error {
	return &Error{Kind: KindConfiguration, Code: code, Field: field, Message: message}
}

// NewRedisConnectionError wraps a connectivity failure observed while
// talking to the store.
func NewRedisConnectionError(cause error) *Error {
	return &Error{Kind: KindRedisConnection, Code: CodeRedisConnectionFailed, Message: "redis connection failed", Cause: cause}
}

// NewOperationError builds an Operation error with the given code and cause.
func NewOperationError(code Code, message string, cause error) *Error {
	return &Error{Kind: KindOperation, Code: code, Message: message, Cause: cause}
}

// IsThrottler reports whether err is, or wraps, an *Error from this package.
func IsThrottler(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// IsConfiguration reports whether err is a Configuration error.
func IsConfiguration(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindConfiguration
}

// IsRedisConnection reports whether err is a RedisConnection error.
func IsRedisConnection(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindRedisConnection
}

// IsOperation reports whether err is an Operation error. Pass code == "" to
// match any Operation error regardless of code.
func IsOperation(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindOperation {
		return false
	}
	return code == "" || e.Code == code
}

// connectionSentinels are stdlib errors that, found anywhere in err's
// chain, mark it as a connectivity failure.
var connectionSentinels = []error{
	syscall.ECONNREFUSED,
	syscall.ECONNRESET,
	syscall.EPIPE,
	syscall.ETIMEDOUT,
	io.EOF,
	io.ErrUnexpectedEOF,
}

// connectionMessageFragments are substrings that mark a driver error as
// connectivity-related when it doesn't wrap a typed network cause. Matched
// case-insensitively against the error's message; last resort for redis
// client errors that return bare strings (e.g. "redis: client is closed").
var connectionMessageFragments = []string{
	"connection", "econnrefused", "timeout", "network", "redis",
}

// isClassifiedConnectionError reports whether err should be treated as a
// store-connectivity failure for the purpose of applying the configured
// failure strategy (spec §4.7). It recognizes our own RedisConnection
// errors, common wrapped network errors, and falls back to message
// matching for driver errors that don't carry a typed cause.
func isClassifiedConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if IsRedisConnection(err) {
		return true
	}
	for _, target := range connectionSentinels {
		if errors.Is(err, target) {
			return true
		}
	}
	if isNetworkError(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range connectionMessageFragments {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// isFunctionNotFoundError reports whether err indicates the stored
// procedure library is absent on the server (never loaded, or flushed by
// an operator), which triggers the loader's reload-once-and-retry path.
func isFunctionNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "function not found") ||
		strings.Contains(msg, "unknown command") ||
		strings.Contains(msg, "no such library")
}
