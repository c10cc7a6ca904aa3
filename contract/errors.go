package contract

import "errors"

// Error categories returned by the contract operations. Operations wrap these
// with fmt.Errorf("...: %w", ...) so callers can classify failures with
// errors.Is while still getting a descriptive message. Any error return
// aborts the transaction; the peer discards every state write and event of
// the failed invocation.
var (
	// ErrUnauthorized is returned when the caller lacks the role an
	// operation requires (admin, authorized verifier, or credential issuer).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAlreadyExists is returned when creating a record that already
	// exists, such as a second identity for the same principal.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotFound is returned when a referenced identity or credential is
	// absent. Read-only getters do not use it; they return an empty record
	// instead.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when a required field is empty or an
	// argument cannot be parsed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCredentialRevoked is returned by credential-mode verification when
	// the credential's issuer has revoked it.
	ErrCredentialRevoked = errors.New("credential revoked")

	// ErrCredentialExpired is returned by credential-mode verification when
	// the current transaction time is past the credential's expiry.
	ErrCredentialExpired = errors.New("credential expired")

	// ErrSubjectMismatch is returned by credential-mode verification when
	// the credential does not belong to the presented subject.
	ErrSubjectMismatch = errors.New("credential subject mismatch")
)
