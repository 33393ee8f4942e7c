package fetch

import (
	"errors"
	"fmt"
)

// Kind classifies fetch failures so the resolver can decide whether to
// move on to the next provider.
type Kind string

const (
	KindRateLimited Kind = "rate_limited"
	KindTimeout     Kind = "timeout"
	KindHTTP        Kind = "http"
	KindNetwork     Kind = "network"
	KindUnavailable Kind = "unavailable" // circuit open or unknown provider
)

// Error is a typed fetch failure tied to one provider.
type Error struct {
	Provider string
	Kind     Kind
	Status   int // HTTP status when Kind == KindHTTP or KindRateLimited
	Err      error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: %s (status %d)", e.Provider, e.Kind, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.Provider, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind, or "" for non-fetch errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
