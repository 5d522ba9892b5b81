package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

var (
	// ErrConnectionRefused means nothing was listening at the provider endpoint.
	ErrConnectionRefused = errors.New("connection refused")
	// ErrTimeout means the provider did not answer within the request budget.
	ErrTimeout = errors.New("request timed out")
)

// TransportError is a generation backend fault that the caller should
// present to the user rather than retry locally.
type TransportError struct {
	Provider string
	Endpoint string
	Kind     error // ErrConnectionRefused or ErrTimeout
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s (%s): %v: %v", e.Provider, e.Endpoint, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// classify wraps err in a TransportError when it is a refused connection
// or a timeout. Other errors, including caller cancellation, pass through.
func classify(provider, endpoint string, err error) error {
	if err == nil {
		return nil
	}
	var kind error
	var netErr net.Error
	switch {
	case errors.Is(err, syscall.ECONNREFUSED), strings.Contains(err.Error(), "connection refused"):
		kind = ErrConnectionRefused
	case errors.Is(err, context.DeadlineExceeded):
		kind = ErrTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = ErrTimeout
	default:
		return err
	}
	return &TransportError{Provider: provider, Endpoint: endpoint, Kind: kind, Err: err}
}

// Describe returns an actionable message for a generation failure.
func Describe(err error) string {
	var te *TransportError
	if errors.As(err, &te) {
		switch te.Kind {
		case ErrConnectionRefused:
			return fmt.Sprintf("Could not connect to %s at %s. Make sure the server is running and reachable.", te.Provider, te.Endpoint)
		case ErrTimeout:
			return fmt.Sprintf("Request to %s at %s timed out. The model may still be loading, or the request was too large.", te.Provider, te.Endpoint)
		}
	}
	if errors.Is(err, context.Canceled) {
		return "Request cancelled."
	}
	return fmt.Sprintf("Generation failed: %v", err)
}
