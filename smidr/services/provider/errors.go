package provider

import (
	"encoding/json"
	"fmt"
)

// APIError is a non-2xx answer from the provider. Body is passed through
// untouched so callers can surface it; only StatusCode drives control flow.
type APIError struct {
	Op         string
	StatusCode int
	Body       json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: provider returned %d: %s", e.Op, e.StatusCode, string(e.Body))
}

// TransportError is a failure to complete the exchange at all
// (dial, DNS, TLS, timeout, truncated body).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a success-shaped response missing what the operation needs.
type ProtocolError struct {
	Op     string
	Reason string
	Body   json.RawMessage
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: invalid provider response: %s", e.Op, e.Reason)
}

// rawBody keeps a provider body usable as json.RawMessage even when it is not JSON.
func rawBody(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	quoted, _ := json.Marshal(string(b))
	return quoted
}
