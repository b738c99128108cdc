// Package orchestrator implements spec.md §4.7, the CampaignOrchestrator:
// the campaign state machine, resumable materialization, and the six-stage
// compliance pipeline. Grounded on the teacher's
// internal/worker/campaign_scheduler.go (distlock-guarded single-flight
// poll-and-process loop, worker heartbeat) and send_worker.go/
// advanced_throttle.go (per-message dispatch, retry, and backoff).
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/transact-messaging/internal/clock"
	"github.com/ignite/transact-messaging/internal/consent"
	"github.com/ignite/transact-messaging/internal/domain"
	"github.com/ignite/transact-messaging/internal/lock"
	"github.com/ignite/transact-messaging/internal/pkg/logger"
	"github.com/ignite/transact-messaging/internal/provider"
	"github.com/ignite/transact-messaging/internal/ratelimit"
	"github.com/ignite/transact-messaging/internal/scheduler"
	"github.com/ignite/transact-messaging/internal/segment"
	"github.com/ignite/transact-messaging/internal/store"
	"github.com/ignite/transact-messaging/internal/template"
)

// MaxContentLength bounds rendered message content per §4.7 stage 4.
const MaxContentLength = 4096

// RetryBudget is the number of transient provider-error retries before a
// message is failed outright (stage 5's "3 transient retries").
const RetryBudget = 3

// MaterializationPageSize is how many recipients the SegmentEvaluator
// streams per page during materialization.
const MaterializationPageSize = 500

// ProviderSendTimeout bounds every outbound Provider call (§5: "Every
// outbound Provider call carries a deadline (default 10s). Deadline expiry
// is a transient failure.").
const ProviderSendTimeout = 10 * time.Second

// Store is the subset of internal/store.Store the orchestrator depends on.
type Store interface {
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
	TransitionCampaign(ctx context.Context, id string, from, to domain.CampaignStatus) error
	AdvanceCampaignCursor(ctx context.Context, id, cursor string) error
	MarkMaterialized(ctx context.Context, id string) error
	GetSegment(ctx context.Context, id string) (*domain.Segment, error)
	GetTemplate(ctx context.Context, id string) (*domain.Template, error)
	GetRecipient(ctx context.Context, e164 string) (*domain.Recipient, error)
	CreateMessage(ctx context.Context, campaignID, e164, rendered string) (string, error)
	TransitionMessage(ctx context.Context, id string, from, to domain.MessageStatus, extra store.MessageFields) error
	ListMessagesByCampaign(ctx context.Context, campaignID string, statuses []domain.MessageStatus) ([]domain.Message, error)
	AppendAudit(ctx context.Context, rec domain.AuditRecord) error
}

// SegmentEvaluator is the subset of internal/segment.Evaluator the
// orchestrator depends on.
type SegmentEvaluator interface {
	EvaluateAll(ctx context.Context, root domain.RuleNode, startCursor string, pageSize int, onPage func(page []string, cursor string) error) error
}

// LockFactory creates a DistLock for a given key, so the orchestrator does
// not need to know which backend (Redis or PG advisory) backs it.
type LockFactory func(key string) lock.DistLock

// Orchestrator drives campaigns through materialization and dispatch.
type Orchestrator struct {
	store       Store
	eval        SegmentEvaluator
	consent     *consent.Service
	limiter     ratelimit.Limiter
	providerCli provider.Client
	sched       scheduler.Scheduler
	clk         clock.Clock
	newLock     LockFactory
}

// New creates an Orchestrator wired to its dependencies.
func New(
	s Store,
	eval SegmentEvaluator,
	consentSvc *consent.Service,
	limiter ratelimit.Limiter,
	providerCli provider.Client,
	sched scheduler.Scheduler,
	clk clock.Clock,
	newLock LockFactory,
) *Orchestrator {
	return &Orchestrator{
		store:       s,
		eval:        eval,
		consent:     consentSvc,
		limiter:     limiter,
		providerCli: providerCli,
		sched:       sched,
		clk:         clk,
		newLock:     newLock,
	}
}

// Trigger drives one campaign from its current state toward COMPLETED,
// single-flighted across processes via a DistLock keyed by campaign id, per
// the teacher's campaign_scheduler.go acquire-lock-or-skip pattern. Safe to
// call repeatedly (e.g. from the Scheduler when schedule_time ≤ now, or an
// operator retrying after a crash): materialization resumes from the last
// committed cursor and dispatch only ever acts on QUEUED messages.
func (o *Orchestrator) Trigger(ctx context.Context, campaignID string) error {
	l := o.newLock(fmt.Sprintf("campaign:%s", campaignID))
	acquired, err := l.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: acquire lock: %w", err)
	}
	if !acquired {
		logger.Info("orchestrator: campaign already being processed elsewhere", "campaign_id", campaignID)
		return nil
	}
	defer l.Release(ctx)

	c, err := o.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("orchestrator: get campaign: %w", err)
	}

	if c.Status == domain.CampaignReady {
		if err := o.store.TransitionCampaign(ctx, campaignID, domain.CampaignReady, domain.CampaignRunning); err != nil {
			return fmt.Errorf("orchestrator: start campaign: %w", err)
		}
		c.Status = domain.CampaignRunning
	}

	if c.Status != domain.CampaignRunning {
		return nil
	}

	if c.MaterializedAt == nil {
		if err := o.materialize(ctx, c); err != nil {
			return fmt.Errorf("orchestrator: materialize: %w", err)
		}
	}

	if err := o.dispatchQueued(ctx, c); err != nil {
		return fmt.Errorf("orchestrator: dispatch: %w", err)
	}

	return o.checkCompletion(ctx, campaignID)
}

// materialize streams the campaign's segment and creates one QUEUED Message
// per eligible recipient, resuming from the campaign's persisted cursor.
func (o *Orchestrator) materialize(ctx context.Context, c *domain.Campaign) error {
	seg, err := o.store.GetSegment(ctx, c.SegmentID)
	if err != nil {
		return fmt.Errorf("resolve segment: %w", err)
	}
	tmpl, err := o.store.GetTemplate(ctx, c.TemplateID)
	if err != nil {
		return fmt.Errorf("resolve template: %w", err)
	}

	root := segment.WithImplicitConsent(seg.Root)

	err = o.eval.EvaluateAll(ctx, root, c.Cursor, MaterializationPageSize, func(page []string, cursor string) error {
		for _, e164 := range page {
			if err := o.materializeOne(ctx, c, tmpl, e164); err != nil {
				logger.Warn("orchestrator: materialize recipient failed", "campaign_id", c.ID, "e164", e164, "error", err.Error())
			}
		}
		return o.store.AdvanceCampaignCursor(ctx, c.ID, cursor)
	})
	if err != nil {
		return err
	}

	return o.store.MarkMaterialized(ctx, c.ID)
}

func (o *Orchestrator) materializeOne(ctx context.Context, c *domain.Campaign, tmpl *domain.Template, e164 string) error {
	recipient, err := o.store.GetRecipient(ctx, e164)
	if err != nil {
		return err
	}

	content, missing := template.Render(tmpl.Content, stringAttrs(recipient.Attributes))
	if len(missing) > 0 {
		return o.store.AppendAudit(ctx, domain.AuditRecord{
			CampaignID: c.ID,
			Stage:      "materialize",
			Outcome:    domain.AuditSkipped,
			Reason:     "render_missing_variables",
			Detail:     fmt.Sprintf("%v", missing),
			At:         o.clk.Now(),
		})
	}

	_, err = o.store.CreateMessage(ctx, c.ID, e164, content)
	return err
}

func stringAttrs(attrs map[string]interface{}) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}

// checkCompletion marks the campaign COMPLETED once materialization has
// drained and every materialized message has reached a terminal status.
func (o *Orchestrator) checkCompletion(ctx context.Context, campaignID string) error {
	c, err := o.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignRunning || c.MaterializedAt == nil {
		return nil
	}

	msgs, err := o.store.ListMessagesByCampaign(ctx, campaignID, nil)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if !m.Status.IsTerminal() {
			return nil
		}
	}

	return o.store.TransitionCampaign(ctx, campaignID, domain.CampaignRunning, domain.CampaignCompleted)
}
