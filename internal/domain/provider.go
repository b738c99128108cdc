package domain

import "fmt"

// ProviderErrorKind classifies a ProviderClient failure for retry purposes.
type ProviderErrorKind string

const (
	ProviderTransient ProviderErrorKind = "transient"
	ProviderPermanent ProviderErrorKind = "permanent"
)

// ProviderError is returned by ProviderClient.Send on delivery failure.
// Kind determines whether the orchestrator retries with backoff
// (ProviderTransient) or fails the message immediately (ProviderPermanent).
type ProviderError struct {
	Kind ProviderErrorKind
	Code int
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error: kind=%s code=%d", e.Kind, e.Code)
}

// SendResult is the successful outcome of ProviderClient.Send.
type SendResult struct {
	ProviderSid string
}
