package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ignite/transact-messaging/internal/clock"
	"github.com/ignite/transact-messaging/internal/domain"
	"github.com/ignite/transact-messaging/internal/store"
)

type fakeStore struct {
	recipients map[string]domain.ConsentState
	messages   map[string]*domain.Message
	bySid      map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		recipients: map[string]domain.ConsentState{},
		messages:   map[string]*domain.Message{},
		bySid:      map[string]string{},
	}
}

func (f *fakeStore) InsertRawInbound(ctx context.Context, payload string) (string, error) { return "raw-1", nil }
func (f *fakeStore) EnrichInbound(ctx context.Context, id, fromE164, normalizedBody, providerMessageID string) error {
	return nil
}
func (f *fakeStore) InsertRawReceipt(ctx context.Context, payload string) (string, error) { return "raw-2", nil }
func (f *fakeStore) EnrichReceipt(ctx context.Context, id, providerSid, status, errorCode string) error {
	return nil
}
func (f *fakeStore) UpsertRecipient(ctx context.Context, e164 string, attrs map[string]interface{}, consent domain.ConsentState) error {
	if _, ok := f.recipients[e164]; !ok {
		f.recipients[e164] = consent
	}
	return nil
}
func (f *fakeStore) FindMessageByProviderSid(ctx context.Context, sid string) (*domain.Message, error) {
	id, ok := f.bySid[sid]
	if !ok {
		return nil, store.ErrNotFound
	}
	return f.messages[id], nil
}
func (f *fakeStore) TransitionMessage(ctx context.Context, id string, from, to domain.MessageStatus, extra store.MessageFields) error {
	m := f.messages[id]
	if m.Status != from {
		return store.ErrConflict
	}
	m.Status = to
	if extra.ErrorCode != nil {
		m.ErrorCode = extra.ErrorCode
	}
	if extra.DeliveredAt != nil {
		m.DeliveredAt = extra.DeliveredAt
	}
	if extra.SentAt != nil {
		m.SentAt = extra.SentAt
	}
	return nil
}

type fakeConsent struct {
	applied []string
}

func (f *fakeConsent) ApplyInboundKeyword(ctx context.Context, e164, body string, at time.Time) error {
	f.applied = append(f.applied, e164+":"+body)
	return nil
}

func TestHandleInbound_UpsertsRecipientAndAppliesKeyword(t *testing.T) {
	fs := newFakeStore()
	fc := &fakeConsent{}
	in := New(fs, fc, clock.NewFakeClock(time.Now()))

	form := strings.NewReader("From=%2B15551234567&Body=STOP&MessageSid=SM1")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/inbound", form)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	in.HandleInbound(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if _, ok := fs.recipients["+15551234567"]; !ok {
		t.Error("expected recipient to be upserted")
	}
	if len(fc.applied) != 1 || fc.applied[0] != "+15551234567:STOP" {
		t.Errorf("applied = %v", fc.applied)
	}
}

func TestHandleInbound_MalformedSenderStillReturns200(t *testing.T) {
	fs := newFakeStore()
	fc := &fakeConsent{}
	in := New(fs, fc, clock.NewFakeClock(time.Now()))

	form := strings.NewReader("From=not-a-number&Body=hi")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/inbound", form)
	rec := httptest.NewRecorder()

	in.HandleInbound(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 even on malformed payload", rec.Code)
	}
	if len(fc.applied) != 0 {
		t.Error("keyword handling should not run for a malformed sender")
	}
}

func TestHandleStatus_AppliesDeliveredTransition(t *testing.T) {
	fs := newFakeStore()
	fc := &fakeConsent{}
	in := New(fs, fc, clock.NewFakeClock(time.Now()))

	fs.messages["msg-1"] = &domain.Message{ID: "msg-1", Status: domain.MessageSent}
	fs.bySid["SM1"] = "msg-1"

	form := strings.NewReader("MessageSid=SM1&MessageStatus=delivered")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/status", form)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	in.HandleStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if fs.messages["msg-1"].Status != domain.MessageDelivered {
		t.Errorf("message status = %s, want DELIVERED", fs.messages["msg-1"].Status)
	}
}

func TestHandleStatus_UnknownSidStillReturns200(t *testing.T) {
	fs := newFakeStore()
	fc := &fakeConsent{}
	in := New(fs, fc, clock.NewFakeClock(time.Now()))

	form := strings.NewReader("MessageSid=unknown&MessageStatus=delivered")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/status", form)
	rec := httptest.NewRecorder()

	in.HandleStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
