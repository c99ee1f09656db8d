package exchange

import (
	"errors"
	"fmt"
)

// ErrStreamClosed signals that a stream ended (server close or read
// failure). Recoverable: the supervisor reconnects with backoff.
var ErrStreamClosed = errors.New("stream closed")

// FetchError is a bootstrap failure (HTTP or response decoding).
// Recoverable: isolated to one source, retried with bounded attempts.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: bootstrap fetch failed: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ConnectError is a stream-level connection or subscription failure.
// Recoverable: triggers backoff/reconnect, never fatal to the process.
type ConnectError struct {
	Source string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s: connect failed: %v", e.Source, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// DecodeError is a single malformed message. The reader drops it, logs,
// and continues; the stream stays up.
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode failed: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// AuthError means the source rejected the configured credentials.
// Fatal for that source only: the supervisor stops retrying and reports
// the source degraded permanently.
type AuthError struct {
	Source string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication rejected: %v", e.Source, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ConfigError is an invalid instrument/source pairing. Fatal at startup,
// before any network activity.
type ConfigError struct {
	Source string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: invalid configuration: %s", e.Source, e.Reason)
}
