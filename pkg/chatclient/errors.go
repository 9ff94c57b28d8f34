package chatclient

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ConnectError is returned when a feed cannot be established.
type ConnectError struct {
	Transport Transport
	Err       error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s connect failed: %v", e.Transport, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the attempt only timed out. A timeout is retried
// on the same transport and never triggers the fallback.
func (e *ConnectError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// FetchError is a failed poll or REST call. StatusCode is zero when the
// request never got a response.
type FetchError struct {
	Op         string
	StatusCode int
	Code       string
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying later may succeed.
func (e *FetchError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500 || e.StatusCode == 429
}
