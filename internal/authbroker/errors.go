package authbroker

import (
	"errors"
	"fmt"
)

// ErrCredentialNotFound means the organization has no active configuration
// for the requested API type. Surfaced as a configuration error; never
// retried.
var ErrCredentialNotFound = errors.New("credential configuration not found")

// DecryptionError wraps a failure to open the stored credential blob
// (misconfigured master key, corrupted data).
type DecryptionError struct {
	Err error
}

func (e *DecryptionError) Error() string { return fmt.Sprintf("credential decryption: %v", e.Err) }
func (e *DecryptionError) Unwrap() error { return e.Err }

// SigningError wraps a failure to build or sign the client assertion
// (malformed key material, algorithm/key mismatch).
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string { return fmt.Sprintf("assertion signing: %v", e.Err) }
func (e *SigningError) Unwrap() error { return e.Err }

// TokenExchangeError means the STS answered with a non-200 status. Status and
// body are carried verbatim for diagnostics.
type TokenExchangeError struct {
	Status int
	Body   string
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("sts rejected token exchange: status %d: %s", e.Status, e.Body)
}

// TransportError is a network-level failure reaching the STS or the resource
// API (timeout, DNS, connection reset). Not retried beyond the executor's
// single 401 retry.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// AuthenticationFailedError means the resource API answered 401 twice in a
// row, once with a freshly minted token. Terminal for the request.
type AuthenticationFailedError struct {
	Status int
	Body   string
}

func (e *AuthenticationFailedError) Error() string {
	return fmt.Sprintf("authentication failed after token refresh: status %d", e.Status)
}

// UpstreamError is a non-auth 4xx/5xx from the resource API, surfaced
// verbatim and never retried at this layer.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error: status %d: %s", e.Status, e.Body)
}
