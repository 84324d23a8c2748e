package drive

import "fmt"

// TransportError reports a failure to reach an endpoint: a network error,
// a body read error, or a non-2xx status. StatusCode is 0 when the request
// never completed.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport error: status %d from %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("transport error: %v (%s)", e.Err, e.URL)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProviderError reports that the endpoint responded but the logical check
// failed, e.g. an invalid share credential.
type ProviderError struct {
	Errno   int
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider error: errno %d", e.Errno)
	}
	return fmt.Sprintf("provider error: %s (errno %d)", e.Message, e.Errno)
}
