package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/ignite/transact-messaging/internal/clock"
	"github.com/ignite/transact-messaging/internal/consent"
	"github.com/ignite/transact-messaging/internal/domain"
	"github.com/ignite/transact-messaging/internal/lock"
	"github.com/ignite/transact-messaging/internal/provider"
	"github.com/ignite/transact-messaging/internal/ratelimit"
	"github.com/ignite/transact-messaging/internal/store"
)

// fakeStore is an in-memory double satisfying both orchestrator.Store and
// consent.Store, mirroring internal/webhook/webhook_test.go's fakeStore.
type fakeStore struct {
	campaigns map[string]*domain.Campaign
	segments  map[string]*domain.Segment
	templates map[string]*domain.Template
	recipients map[string]*domain.Recipient
	messages  map[string]*domain.Message
	audits    []domain.AuditRecord
	seq       int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		campaigns:  map[string]*domain.Campaign{},
		segments:   map[string]*domain.Segment{},
		templates:  map[string]*domain.Template{},
		recipients: map[string]*domain.Recipient{},
		messages:   map[string]*domain.Message{},
	}
}

func (f *fakeStore) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	c, ok := f.campaigns[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) TransitionCampaign(ctx context.Context, id string, from, to domain.CampaignStatus) error {
	c, ok := f.campaigns[id]
	if !ok || c.Status != from {
		return store.ErrConflict
	}
	c.Status = to
	return nil
}

func (f *fakeStore) AdvanceCampaignCursor(ctx context.Context, id, cursor string) error {
	f.campaigns[id].Cursor = cursor
	return nil
}

func (f *fakeStore) MarkMaterialized(ctx context.Context, id string) error {
	now := time.Now()
	f.campaigns[id].MaterializedAt = &now
	return nil
}

func (f *fakeStore) GetSegment(ctx context.Context, id string) (*domain.Segment, error) {
	s, ok := f.segments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	t, ok := f.templates[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) GetRecipient(ctx context.Context, e164 string) (*domain.Recipient, error) {
	r, ok := f.recipients[e164]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) UpsertRecipient(ctx context.Context, e164 string, attrs map[string]interface{}, consentState domain.ConsentState) error {
	f.recipients[e164] = &domain.Recipient{E164: e164, Attributes: attrs, Consent: consentState}
	return nil
}

func (f *fakeStore) UpdateConsent(ctx context.Context, e164 string, newState domain.ConsentState, source string, at time.Time) (domain.ConsentState, error) {
	r, ok := f.recipients[e164]
	if !ok {
		r = &domain.Recipient{E164: e164, Consent: domain.ConsentOptIn}
		f.recipients[e164] = r
	}
	prior := r.Consent
	r.Consent = newState
	return prior, nil
}

func (f *fakeStore) CreateMessage(ctx context.Context, campaignID, e164, rendered string) (string, error) {
	f.seq++
	id := "msg-" + string(rune('0'+f.seq))
	f.messages[id] = &domain.Message{
		ID: id, CampaignID: campaignID, RecipientE164: e164,
		RenderedContent: rendered, Status: domain.MessageQueued,
	}
	return id, nil
}

func (f *fakeStore) TransitionMessage(ctx context.Context, id string, from, to domain.MessageStatus, extra store.MessageFields) error {
	m, ok := f.messages[id]
	if !ok || m.Status != from {
		return store.ErrConflict
	}
	m.Status = to
	if extra.ProviderSid != nil {
		m.ProviderSid = extra.ProviderSid
	}
	if extra.ErrorCode != nil {
		m.ErrorCode = extra.ErrorCode
	}
	if extra.RetryCount != nil {
		m.RetryCount = *extra.RetryCount
	}
	if extra.SentAt != nil {
		m.SentAt = extra.SentAt
	}
	if extra.DeliveredAt != nil {
		m.DeliveredAt = extra.DeliveredAt
	}
	return nil
}

func (f *fakeStore) ListMessagesByCampaign(ctx context.Context, campaignID string, statuses []domain.MessageStatus) ([]domain.Message, error) {
	var want map[domain.MessageStatus]bool
	if len(statuses) > 0 {
		want = make(map[domain.MessageStatus]bool, len(statuses))
		for _, s := range statuses {
			want[s] = true
		}
	}
	var out []domain.Message
	for _, m := range f.messages {
		if m.CampaignID != campaignID {
			continue
		}
		if want != nil && !want[m.Status] {
			continue
		}
		out = append(out, *m)
	}
	return out, nil
}

func (f *fakeStore) AppendAudit(ctx context.Context, rec domain.AuditRecord) error {
	f.audits = append(f.audits, rec)
	return nil
}

// fakeEvaluator streams a fixed recipient list in one page.
type fakeEvaluator struct {
	recipients []string
}

func (f *fakeEvaluator) EvaluateAll(ctx context.Context, root domain.RuleNode, startCursor string, pageSize int, onPage func(page []string, cursor string) error) error {
	return onPage(f.recipients, "done")
}

type noopLock struct{}

func (noopLock) Acquire(ctx context.Context) (bool, error) { return true, nil }
func (noopLock) Release(ctx context.Context) error         { return nil }

type noopScheduler struct {
	delayed map[string]time.Time
}

func (s *noopScheduler) DelayUntil(key string, when time.Time, handler func(ctx context.Context, key string)) {
	if s.delayed == nil {
		s.delayed = map[string]time.Time{}
	}
	s.delayed[key] = when
}
func (s *noopScheduler) Start(ctx context.Context) {}
func (s *noopScheduler) Stop()                     {}

func newTestOrchestrator(fs *fakeStore) (*Orchestrator, *provider.FakeClient, *noopScheduler, *clock.FakeClock) {
	cl := clock.NewFakeClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	pc := provider.NewFakeClient()
	sched := &noopScheduler{}
	o := New(
		fs,
		&fakeEvaluator{recipients: []string{"+15550001111"}},
		consent.NewService(fs),
		ratelimit.NewMemoryLimiter(),
		pc,
		sched,
		cl,
		func(key string) lock.DistLock { return noopLock{} },
	)
	return o, pc, sched, cl
}

func baseCampaign(id string) *domain.Campaign {
	return &domain.Campaign{
		ID: id, SegmentID: "seg-1", TemplateID: "tmpl-1",
		Status: domain.CampaignReady, RateLimit: 100,
	}
}

func TestTrigger_MaterializesAndSendsMessage(t *testing.T) {
	fs := newFakeStore()
	fs.campaigns["c1"] = baseCampaign("c1")
	fs.segments["seg-1"] = &domain.Segment{ID: "seg-1", Root: domain.RuleNode{Kind: domain.RuleLeaf, Attribute: "plan", Operator: domain.OpEquals, Value: "pro"}}
	fs.templates["tmpl-1"] = &domain.Template{ID: "tmpl-1", Content: "hi {name}", Variables: []string{"name"}}
	fs.recipients["+15550001111"] = &domain.Recipient{E164: "+15550001111", Consent: domain.ConsentOptIn, Attributes: map[string]interface{}{"name": "Ada"}}

	o, pc, _, _ := newTestOrchestrator(fs)

	if err := o.Trigger(context.Background(), "c1"); err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	if fs.campaigns["c1"].Status != domain.CampaignCompleted {
		t.Errorf("campaign status = %s, want COMPLETED", fs.campaigns["c1"].Status)
	}
	if len(pc.Calls) != 1 || pc.Calls[0].Body != "hi Ada" {
		t.Errorf("provider calls = %+v", pc.Calls)
	}
	var sent int
	for _, m := range fs.messages {
		if m.Status == domain.MessageSent {
			sent++
		}
	}
	if sent != 1 {
		t.Errorf("sent messages = %d, want 1", sent)
	}
}

func TestDispatchOne_ConsentBlockedFailsMessage(t *testing.T) {
	fs := newFakeStore()
	fs.campaigns["c1"] = baseCampaign("c1")
	fs.recipients["+15550001111"] = &domain.Recipient{E164: "+15550001111", Consent: domain.ConsentStop}
	id, _ := fs.CreateMessage(context.Background(), "c1", "+15550001111", "hi")

	o, pc, _, _ := newTestOrchestrator(fs)
	c := fs.campaigns["c1"]
	o.dispatchOne(context.Background(), c, fs.messages[id])

	if fs.messages[id].Status != domain.MessageFailed {
		t.Errorf("status = %s, want FAILED", fs.messages[id].Status)
	}
	if len(pc.Calls) != 0 {
		t.Error("provider should not have been called")
	}
}

func TestDispatchOne_QuietHoursReschedulesWithoutSending(t *testing.T) {
	fs := newFakeStore()
	c := baseCampaign("c1")
	c.QuietHours = domain.QuietHours{Start: "00:00", End: "23:59", Timezone: "UTC"}
	fs.campaigns["c1"] = c
	fs.recipients["+15550001111"] = &domain.Recipient{E164: "+15550001111", Consent: domain.ConsentOptIn}
	id, _ := fs.CreateMessage(context.Background(), "c1", "+15550001111", "hi")

	o, pc, sched, _ := newTestOrchestrator(fs)
	o.dispatchOne(context.Background(), c, fs.messages[id])

	if fs.messages[id].Status != domain.MessageQueued {
		t.Errorf("status = %s, want QUEUED (unchanged)", fs.messages[id].Status)
	}
	if len(pc.Calls) != 0 {
		t.Error("provider should not have been called during quiet hours")
	}
	if _, ok := sched.delayed[retryKey(id)]; !ok {
		t.Error("expected a reschedule to be armed")
	}
}

func TestSend_TransientErrorRetriesUntilBudgetExhausted(t *testing.T) {
	fs := newFakeStore()
	fs.campaigns["c1"] = baseCampaign("c1")
	fs.recipients["+15550001111"] = &domain.Recipient{E164: "+15550001111", Consent: domain.ConsentOptIn}
	id, _ := fs.CreateMessage(context.Background(), "c1", "+15550001111", "hi")

	o, pc, sched, _ := newTestOrchestrator(fs)
	pc.SetError("+15550001111", "hi", &domain.ProviderError{Kind: domain.ProviderTransient, Code: 500})

	c := fs.campaigns["c1"]
	for i := 0; i < RetryBudget; i++ {
		fs.messages[id].Status = domain.MessageQueued
		o.send(context.Background(), c, fs.messages[id])
		if fs.messages[id].Status != domain.MessageQueued {
			t.Fatalf("round %d: status = %s, want QUEUED (still under budget)", i, fs.messages[id].Status)
		}
	}
	if _, ok := sched.delayed[retryKey(id)]; !ok {
		t.Error("expected a backoff reschedule to be armed")
	}

	fs.messages[id].Status = domain.MessageQueued
	fs.messages[id].RetryCount = RetryBudget
	o.send(context.Background(), c, fs.messages[id])
	if fs.messages[id].Status != domain.MessageFailed {
		t.Errorf("status = %s, want FAILED once retry budget is exhausted", fs.messages[id].Status)
	}
}

func TestSend_PermanentErrorFailsImmediately(t *testing.T) {
	fs := newFakeStore()
	fs.campaigns["c1"] = baseCampaign("c1")
	fs.recipients["+15550001111"] = &domain.Recipient{E164: "+15550001111", Consent: domain.ConsentOptIn}
	id, _ := fs.CreateMessage(context.Background(), "c1", "+15550001111", "hi")

	o, _, _, _ := newTestOrchestrator(fs)
	pcErr := &domain.ProviderError{Kind: domain.ProviderPermanent, Code: 400}
	o.providerCli.(*provider.FakeClient).SetError("+15550001111", "hi", pcErr)

	c := fs.campaigns["c1"]
	o.send(context.Background(), c, fs.messages[id])

	if fs.messages[id].Status != domain.MessageFailed {
		t.Errorf("status = %s, want FAILED", fs.messages[id].Status)
	}
}

// TestSend_ProviderTimeoutIsTransient guards §5's "every outbound Provider
// call carries a deadline; deadline expiry is a transient failure": a
// provider that never responds must not hang dispatch forever, and must be
// retried rather than failed outright.
func TestSend_ProviderTimeoutIsTransient(t *testing.T) {
	fs := newFakeStore()
	fs.campaigns["c1"] = baseCampaign("c1")
	fs.recipients["+15550001111"] = &domain.Recipient{E164: "+15550001111", Consent: domain.ConsentOptIn}
	id, _ := fs.CreateMessage(context.Background(), "c1", "+15550001111", "hi")

	o, pc, sched, _ := newTestOrchestrator(fs)
	pc.SetBlocking("+15550001111", "hi")

	done := make(chan struct{})
	go func() {
		o.send(context.Background(), fs.campaigns["c1"], fs.messages[id])
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(ProviderSendTimeout + 5*time.Second):
		t.Fatal("send() did not return after the provider deadline expired")
	}

	if fs.messages[id].Status != domain.MessageQueued {
		t.Errorf("status = %s, want QUEUED (timeout is transient, retried)", fs.messages[id].Status)
	}
	if _, ok := sched.delayed[retryKey(id)]; !ok {
		t.Error("expected a backoff reschedule to be armed after a timed-out send")
	}
}

func TestMaterialize_SkipsRecipientWithMissingTemplateVariable(t *testing.T) {
	fs := newFakeStore()
	fs.campaigns["c1"] = baseCampaign("c1")
	fs.segments["seg-1"] = &domain.Segment{ID: "seg-1", Root: domain.RuleNode{Kind: domain.RuleLeaf, Attribute: "plan", Operator: domain.OpEquals, Value: "pro"}}
	fs.templates["tmpl-1"] = &domain.Template{ID: "tmpl-1", Content: "hi {name}", Variables: []string{"name"}}
	fs.recipients["+15550001111"] = &domain.Recipient{E164: "+15550001111", Consent: domain.ConsentOptIn}

	o, pc, _, _ := newTestOrchestrator(fs)
	if err := o.Trigger(context.Background(), "c1"); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if len(pc.Calls) != 0 {
		t.Error("no message should have been materialized/sent without the required variable")
	}
	if len(fs.messages) != 0 {
		t.Errorf("expected no messages created, got %d", len(fs.messages))
	}
}
