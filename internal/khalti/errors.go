package khalti

import "fmt"

// InitiationError reports a failed payment-initiation call. Detail carries
// the processor's own message when the response body contained one; Err is
// the transport error otherwise. Initiation is never retried by the client
// because the processor does not guarantee idempotency; callers retry with a
// fresh purchase order id.
type InitiationError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *InitiationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("khalti: initiate payment: %s", e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("khalti: initiate payment: %v", e.Err)
	}
	return "khalti: initiate payment failed"
}

func (e *InitiationError) Unwrap() error { return e.Err }

// LookupError reports a failed status lookup. No fallback status is invented
// on failure; the caller keeps the last snapshot it observed.
type LookupError struct {
	Pidx       string
	StatusCode int
	Detail     string
	Err        error
}

func (e *LookupError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("khalti: lookup %s: %s", e.Pidx, e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("khalti: lookup %s: %v", e.Pidx, e.Err)
	}
	return fmt.Sprintf("khalti: lookup %s failed", e.Pidx)
}

func (e *LookupError) Unwrap() error { return e.Err }
