package proxy

import "fmt"

// StatusError carries an upstream HTTP status through to the proxy's own
// response, so a provider's 4xx/5xx reaches the caller with the same code
// (spec.md §6.5: "upstream 4xx/5xx → corresponding status").
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Message)
}

func upstreamStatusError(status int, provider string) error {
	return &StatusError{Status: status, Message: fmt.Sprintf("%s returned status %d", provider, status)}
}
