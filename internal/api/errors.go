package api

import (
	"errors"
	"fmt"
)

var (
	ErrFetchFailed    = errors.New("history page fetch failed")
	ErrInvalidRequest = errors.New("invalid history page request")
)

// FetchError reports a failed history page request. StatusCode is zero when
// the request never produced an HTTP response or the body could not be decoded.
type FetchError struct {
	Page       int
	StatusCode int
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("history page %d: unexpected status %d: %s", e.Page, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("history page %d: %v", e.Page, e.Err)
	default:
		return fmt.Sprintf("history page %d: fetch failed", e.Page)
	}
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is/As.
func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFetchFailed}
	}
	return []error{ErrFetchFailed, e.Err}
}
