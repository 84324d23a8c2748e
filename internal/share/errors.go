package share

import (
	"fmt"

	"drivebridge/internal/drive"
)

// CallError enriches a failed page fetch with the endpoint and payload used,
// for diagnosability. The underlying cause is a *drive.TransportError or a
// *drive.ProviderError, reachable through Unwrap.
type CallError struct {
	Endpoint string
	Base     string
	Payload  drive.ListPayload
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%v | endpoint=%s base=%s payload=%+v", e.Err, e.Endpoint, e.Base, e.Payload)
}

func (e *CallError) Unwrap() error {
	return e.Err
}
