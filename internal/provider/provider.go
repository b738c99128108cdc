// Package provider implements spec.md §4.7's dispatch boundary: sending one
// rendered message to an SMS provider and classifying the result as
// transient or permanent for the orchestrator's retry budget. Grounded on
// the teacher's internal/worker/esp_sparkpost.go send-one-message pattern.
package provider

import (
	"context"

	"github.com/ignite/transact-messaging/internal/domain"
)

// Client sends one rendered message to a single recipient and returns the
// provider-assigned message id on success.
type Client interface {
	Send(ctx context.Context, to, body string) (domain.SendResult, error)
}
