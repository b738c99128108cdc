// Package webhook implements spec.md §4.6's two inbound HTTP entry points:
// raw capture comes first, parsing and side effects happen best-effort
// afterward. A handler answers 400 only when the request body cannot be
// read and otherwise answers 200, even if the raw insert or parsing fails. Grounded on the teacher's
// internal/worker/webhook_receiver.go read-body/unmarshal/insert-then-200
// shape, collapsed from its five ESP-specific handlers down to the two
// Twilio-shaped ones this spec names.
package webhook

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ignite/transact-messaging/internal/domain"
	"github.com/ignite/transact-messaging/internal/pkg/logger"
	"github.com/ignite/transact-messaging/internal/store"
)

// Store is the subset of internal/store.Store this package depends on.
type Store interface {
	InsertRawInbound(ctx context.Context, payload string) (string, error)
	EnrichInbound(ctx context.Context, id, fromE164, normalizedBody, providerMessageID string) error
	InsertRawReceipt(ctx context.Context, payload string) (string, error)
	EnrichReceipt(ctx context.Context, id, providerSid, status, errorCode string) error
	UpsertRecipient(ctx context.Context, e164 string, attrs map[string]interface{}, consent domain.ConsentState) error
	FindMessageByProviderSid(ctx context.Context, sid string) (*domain.Message, error)
	TransitionMessage(ctx context.Context, id string, from, to domain.MessageStatus, extra store.MessageFields) error
}

// ConsentService is the subset of internal/consent.Service this package
// depends on.
type ConsentService interface {
	ApplyInboundKeyword(ctx context.Context, e164, body string, at time.Time) error
}

// Clock supplies the current time so tests can make receipt timestamps
// deterministic.
type Clock interface {
	Now() time.Time
}

// Ingestor exposes the two webhook HTTP handlers.
type Ingestor struct {
	store   Store
	consent ConsentService
	clock   Clock
}

// New creates an Ingestor wired to a Store and ConsentService.
func New(s Store, consent ConsentService, clock Clock) *Ingestor {
	return &Ingestor{store: s, consent: consent, clock: clock}
}

// HandleInbound implements POST /webhooks/inbound: capture the raw payload
// first (never failing the request on a read error beyond a 400), then
// best-effort parse and apply consent/keyword handling. Twilio posts
// inbound SMS as application/x-www-form-urlencoded with From/Body/MessageSid.
func (in *Ingestor) HandleInbound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	id, err := in.store.InsertRawInbound(ctx, string(body))
	if err != nil {
		logger.Error("webhook: insert raw inbound failed", "error", err.Error())
		w.WriteHeader(http.StatusOK)
		return
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	from := form.Get("From")
	messageBody := form.Get("Body")
	providerMessageID := form.Get("MessageSid")

	if !domain.IsValidE164(from) {
		logger.Warn("webhook: inbound from malformed sender", "e164", from)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := in.store.EnrichInbound(ctx, id, from, messageBody, providerMessageID); err != nil {
		logger.Error("webhook: enrich inbound failed", "error", err.Error())
	}

	if err := in.store.UpsertRecipient(ctx, from, map[string]interface{}{}, domain.ConsentOptIn); err != nil {
		logger.Error("webhook: upsert recipient failed", "e164", from, "error", err.Error())
	}

	if err := in.consent.ApplyInboundKeyword(ctx, from, messageBody, in.clock.Now()); err != nil {
		logger.Error("webhook: apply keyword failed", "e164", from, "error", err.Error())
	}

	w.WriteHeader(http.StatusOK)
}

// HandleStatus implements POST /webhooks/status: capture the raw payload
// first, then best-effort locate the Message by provider sid and apply the
// status-callback transition of spec.md §4.7. Twilio posts status
// callbacks as application/x-www-form-urlencoded with MessageSid/
// MessageStatus/ErrorCode.
func (in *Ingestor) HandleStatus(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	id, err := in.store.InsertRawReceipt(ctx, string(body))
	if err != nil {
		logger.Error("webhook: insert raw receipt failed", "error", err.Error())
		w.WriteHeader(http.StatusOK)
		return
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	sid := form.Get("MessageSid")
	callback := form.Get("MessageStatus")
	errorCode := form.Get("ErrorCode")

	if err := in.store.EnrichReceipt(ctx, id, sid, callback, errorCode); err != nil {
		logger.Error("webhook: enrich receipt failed", "error", err.Error())
	}

	msg, err := in.store.FindMessageByProviderSid(ctx, sid)
	if err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	next, ok := domain.NextStatusForCallback(msg.Status, callback)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}

	fields := store.MessageFields{}
	now := in.clock.Now()
	switch next {
	case domain.MessageDelivered:
		fields.DeliveredAt = &now
	case domain.MessageSent:
		fields.SentAt = &now
	}
	if errorCode != "" {
		fields.ErrorCode = &errorCode
	}

	if err := in.store.TransitionMessage(ctx, msg.ID, msg.Status, next, fields); err != nil {
		logger.Warn("webhook: status transition skipped", "message_id", msg.ID, "error", err.Error())
	}

	w.WriteHeader(http.StatusOK)
}
