package transfer

import "fmt"

// LocationError reports a remote or local location that cannot back a
// transfer: an unparseable URL, an unsupported scheme, an empty local path.
// Worker construction fails with it and the admission attempt is abandoned.
type LocationError struct {
	Location string // the offending location handle
	Reason   string // human-readable explanation
	Err      error  // underlying error, if any
}

func (e *LocationError) Error() string {
	return fmt.Sprintf("invalid transfer location %q: %s", e.Location, e.Reason)
}

func (e *LocationError) Unwrap() error {
	return e.Err
}

// NetworkError represents network failures and remote errors during a
// transfer: non-2xx responses, connection failures, mid-stream resets.
type NetworkError struct {
	Operation  string // the operation that failed (e.g. "fetch", "stream")
	StatusCode int    // HTTP status code, if applicable (0 for non-HTTP errors)
	Err        error  // underlying error, if any
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network error during %s (HTTP %d)", e.Operation, e.StatusCode)
	}

	return fmt.Sprintf("network error during %s: %v", e.Operation, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
