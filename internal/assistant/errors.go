package assistant

import "fmt"

const maxErrorBody = 200

// RemoteServiceError is a non-success HTTP status from the remote service.
type RemoteServiceError struct {
	Op         string
	StatusCode int
	Status     string
	Body       string
}

func (e *RemoteServiceError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s failed: %s", e.Op, e.Status)
	}
	return fmt.Sprintf("%s failed: %s: %s", e.Op, e.Status, e.Body)
}

// ProtocolError is a response body that does not have the expected shape.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: unexpected response: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	// avoid splitting a multi-byte rune
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut] + "…"
}
