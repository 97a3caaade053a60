package fetch

import "fmt"

// ErrorKind classifies a fetch failure.
type ErrorKind string

// Fetch failure kinds surfaced to scrapers.
const (
	KindTimeout          ErrorKind = "timeout"
	KindHTTPStatus       ErrorKind = "http_status"
	KindNetwork          ErrorKind = "network"
	KindExhaustedRetries ErrorKind = "exhausted_retries"
)

// Error is the failure signal returned by the Client. Status is set only
// for KindHTTPStatus and KindExhaustedRetries when the last attempt got a
// response.
type Error struct {
	Kind   ErrorKind
	Status int
	URL    string
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: %s (status %d)", e.URL, e.Kind, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// IsPermanent reports whether retrying cannot help: any 4xx other than 429.
func (e *Error) IsPermanent() bool {
	return e.Kind == KindHTTPStatus && e.Status >= 400 && e.Status < 500 && e.Status != 429
}
