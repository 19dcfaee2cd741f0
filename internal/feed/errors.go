package feed

import (
	"errors"
	"fmt"
)

var (
	ErrConnectFailed = errors.New("live feed connection failed")
	ErrDecode        = errors.New("live feed message not decodable")
)

// ConnectError reports a failed dial or a connection lost after open.
// StatusCode is set when the handshake got an HTTP response.
type ConnectError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *ConnectError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("live feed %s: handshake status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("live feed %s: %v", e.URL, e.Err)
}

func (e *ConnectError) Unwrap() []error {
	return []error{ErrConnectFailed, e.Err}
}

// DecodeError describes an inbound message that is not a chunk batch.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode live message: %s: %v", e.Reason, e.Err)
	}
	return "decode live message: " + e.Reason
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDecode}
	}
	return []error{ErrDecode, e.Err}
}
