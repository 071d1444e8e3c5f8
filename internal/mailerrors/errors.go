// Package mailerrors implements the error taxonomy the sync and delivery
// engine reasons about: transient network failures, authentication failures,
// protocol violations, storage failures, configuration failures, and
// license/quota refusals. Reconcilers, executors, and the scheduler branch on
// kind via errors.As, never by matching error strings.
package mailerrors

import "github.com/pkg/errors"

// TransientError wraps a failure expected to clear on its own: TCP/TLS
// timeouts, mid-read socket closes, SMTP 4xx/5xx greylisting. Sync retries at
// the next tick; outgoing delivery retries per the task's retry policy.
type TransientError struct {
	Op    string
	cause error
}

func NewTransientError(op string, cause error) *TransientError {
	return &TransientError{Op: op, cause: cause}
}

func (e *TransientError) Error() string {
	if e.cause == nil {
		return "transient error: " + e.Op
	}
	return "transient error: " + e.Op + ": " + e.cause.Error()
}

func (e *TransientError) Unwrap() error { return e.cause }

// AuthError wraps a credential or OAuth-token failure. The current tick is
// skipped, the failure is recorded on the account's running state, and an
// OAuth refresh task (if applicable) addresses it asynchronously.
type AuthError struct {
	Op    string
	cause error
}

func NewAuthError(op string, cause error) *AuthError {
	return &AuthError{Op: op, cause: cause}
}

func (e *AuthError) Error() string {
	if e.cause == nil {
		return "auth error: " + e.Op
	}
	return "auth error: " + e.Op + ": " + e.cause.Error()
}

func (e *AuthError) Unwrap() error { return e.cause }

// ProtocolError wraps a malformed-response failure: no mailboxes returned, a
// FETCH response missing a required field, an unparseable envelope. The
// current folder is skipped; sync continues with the next one.
type ProtocolError struct {
	Op    string
	cause error
}

func NewProtocolError(op string, cause error) *ProtocolError {
	return &ProtocolError{Op: op, cause: cause}
}

func (e *ProtocolError) Error() string {
	if e.cause == nil {
		return "protocol error: " + e.Op
	}
	return "protocol error: " + e.Op + ": " + e.cause.Error()
}

func (e *ProtocolError) Unwrap() error { return e.cause }

// StorageError wraps a local persistence failure: a write conflict, a
// required key missing on lookup. The operation fails; the caller decides
// whether the folder or account becomes skipped for the current tick.
type StorageError struct {
	Op    string
	cause error
}

func NewStorageError(op string, cause error) *StorageError {
	return &StorageError{Op: op, cause: cause}
}

func (e *StorageError) Error() string {
	if e.cause == nil {
		return "storage error: " + e.Op
	}
	return "storage error: " + e.Op + ": " + e.cause.Error()
}

func (e *StorageError) Unwrap() error { return e.cause }

// ConfigError wraps a validation failure that must never reach the network:
// a missing encrypted password, an unparseable address, an invalid
// send_at. Fails at validation time; the caller never enqueues.
type ConfigError struct {
	Op    string
	cause error
}

func NewConfigError(op string, cause error) *ConfigError {
	return &ConfigError{Op: op, cause: cause}
}

func (e *ConfigError) Error() string {
	if e.cause == nil {
		return "config error: " + e.Op
	}
	return "config error: " + e.Op + ": " + e.cause.Error()
}

func (e *ConfigError) Unwrap() error { return e.cause }

// QuotaError wraps a license/plan refusal. Account creation and sync start
// are refused; existing syncs keep running.
type QuotaError struct {
	Op    string
	cause error
}

func NewQuotaError(op string, cause error) *QuotaError {
	return &QuotaError{Op: op, cause: cause}
}

func (e *QuotaError) Error() string {
	if e.cause == nil {
		return "quota error: " + e.Op
	}
	return "quota error: " + e.Op + ": " + e.cause.Error()
}

func (e *QuotaError) Unwrap() error { return e.cause }

// IsTransient reports whether err is, or wraps, a TransientError.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsAuth reports whether err is, or wraps, an AuthError.
func IsAuth(err error) bool {
	var t *AuthError
	return errors.As(err, &t)
}

// IsProtocol reports whether err is, or wraps, a ProtocolError.
func IsProtocol(err error) bool {
	var t *ProtocolError
	return errors.As(err, &t)
}

// IsStorage reports whether err is, or wraps, a StorageError.
func IsStorage(err error) bool {
	var t *StorageError
	return errors.As(err, &t)
}

// IsConfig reports whether err is, or wraps, a ConfigError.
func IsConfig(err error) bool {
	var t *ConfigError
	return errors.As(err, &t)
}

// IsQuota reports whether err is, or wraps, a QuotaError.
func IsQuota(err error) bool {
	var t *QuotaError
	return errors.As(err, &t)
}
