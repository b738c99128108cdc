package orchestrator

import (
	"context"
	"fmt"

	"github.com/ignite/transact-messaging/internal/domain"
	"github.com/ignite/transact-messaging/internal/pkg/logger"
	"github.com/ignite/transact-messaging/internal/store"
)

// dispatchQueued runs the six-stage compliance pipeline over every QUEUED
// message of the campaign. Each message is handled independently; a
// per-message failure never halts the campaign (§7 propagation policy).
func (o *Orchestrator) dispatchQueued(ctx context.Context, c *domain.Campaign) error {
	msgs, err := o.store.ListMessagesByCampaign(ctx, c.ID, []domain.MessageStatus{domain.MessageQueued})
	if err != nil {
		return err
	}
	for i := range msgs {
		o.dispatchOne(ctx, c, &msgs[i])
	}
	return nil
}

func (o *Orchestrator) dispatchOne(ctx context.Context, c *domain.Campaign, m *domain.Message) {
	now := o.clk.Now()

	// Stage 1: consent.
	elig, err := o.consent.IsEligible(ctx, m.RecipientE164)
	if err != nil {
		o.audit(ctx, c.ID, &m.ID, "consent", domain.AuditFailed, err.Error())
		return
	}
	if !elig.OK {
		o.failMessage(ctx, m, "consent_blocked")
		o.audit(ctx, c.ID, &m.ID, "consent", domain.AuditSkipped, string(elig.Reason))
		return
	}

	// Stage 2: quiet hours.
	recipient, err := o.store.GetRecipient(ctx, m.RecipientE164)
	if err != nil {
		o.audit(ctx, c.ID, &m.ID, "quiet_hours", domain.AuditFailed, err.Error())
		return
	}
	recipientTZ, _ := recipient.Attributes["timezone"].(string)
	if inQuietHours(c.QuietHours, recipientTZ, now) {
		resumeAt := nextQuietHoursEnd(c.QuietHours, recipientTZ, now)
		o.sched.DelayUntil(retryKey(m.ID), resumeAt, o.retryHandler(c.ID))
		o.audit(ctx, c.ID, &m.ID, "quiet_hours", domain.AuditDelayed, "quiet_hours_blocked")
		return
	}

	// Stage 3: rate limit.
	admitted, retryAfter, err := o.limiter.TryAcquire(ctx, c.ID, c.RateLimit, now)
	if err != nil {
		o.audit(ctx, c.ID, &m.ID, "rate_limit", domain.AuditFailed, err.Error())
		return
	}
	if !admitted {
		o.sched.DelayUntil(retryKey(m.ID), now.Add(retryAfter), o.retryHandler(c.ID))
		o.audit(ctx, c.ID, &m.ID, "rate_limit", domain.AuditDelayed, "rate_limited")
		return
	}

	// Stage 4: content validation.
	if m.RenderedContent == "" || len(m.RenderedContent) > MaxContentLength {
		o.failMessage(ctx, m, "content_invalid")
		o.audit(ctx, c.ID, &m.ID, "content", domain.AuditFailed, "content_invalid")
		return
	}

	// Stage 5: dispatch.
	o.send(ctx, c, m)
}

func (o *Orchestrator) send(ctx context.Context, c *domain.Campaign, m *domain.Message) {
	sendAt := o.clk.Now()

	if err := o.store.TransitionMessage(ctx, m.ID, domain.MessageQueued, domain.MessageSending, store.MessageFields{}); err != nil {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, ProviderSendTimeout)
	result, sendErr := o.providerCli.Send(sendCtx, m.RecipientE164, m.RenderedContent)
	cancel()
	if sendErr == nil {
		sid := result.ProviderSid
		_ = o.store.TransitionMessage(ctx, m.ID, domain.MessageSending, domain.MessageSent, store.MessageFields{
			ProviderSid: &sid,
			SentAt:      &sendAt,
		})
		o.audit(ctx, c.ID, &m.ID, "dispatch", domain.AuditAdmitted, "sent")
		return
	}

	// A ProviderSendTimeout expiry reaches here either as
	// context.DeadlineExceeded (FakeClient), which is not a
	// *domain.ProviderError, or as a transient *domain.ProviderError
	// (TwilioClient); both take the retry path below like a network
	// error: transient per §5 ("deadline expiry
	// is a transient failure") without a ProviderClient needing to know
	// about the timeout it was given.
	perr, ok := sendErr.(*domain.ProviderError)
	permanent := ok && perr.Kind == domain.ProviderPermanent

	if permanent || m.RetryCount >= RetryBudget {
		code := sendErr.Error()
		if ok {
			code = fmt.Sprintf("%d", perr.Code)
		}
		_ = o.store.TransitionMessage(ctx, m.ID, domain.MessageSending, domain.MessageFailed, store.MessageFields{ErrorCode: &code})
		o.audit(ctx, c.ID, &m.ID, "dispatch", domain.AuditFailed, code)
		return
	}

	nextRetry := m.RetryCount + 1
	_ = o.store.TransitionMessage(ctx, m.ID, domain.MessageSending, domain.MessageQueued, store.MessageFields{RetryCount: &nextRetry})
	delay := backoff(nextRetry, defaultJitter)
	o.sched.DelayUntil(retryKey(m.ID), sendAt.Add(delay), o.retryHandler(c.ID))
	o.audit(ctx, c.ID, &m.ID, "dispatch", domain.AuditRetried, sendErr.Error())
}

func (o *Orchestrator) failMessage(ctx context.Context, m *domain.Message, reason string) {
	_ = o.store.TransitionMessage(ctx, m.ID, domain.MessageQueued, domain.MessageFailed, store.MessageFields{ErrorCode: &reason})
}

func (o *Orchestrator) audit(ctx context.Context, campaignID string, messageID *string, stage string, outcome domain.AuditOutcome, reason string) {
	_ = o.store.AppendAudit(ctx, domain.AuditRecord{
		CampaignID: campaignID,
		MessageID:  messageID,
		Stage:      stage,
		Outcome:    outcome,
		Reason:     reason,
		At:         o.clk.Now(),
	})
}

func retryKey(messageID string) string {
	return "message:" + messageID
}

// retryHandler returns a scheduler.Handler that re-triggers the owning
// campaign when a delayed message's window has arrived — dispatch will
// pick it back up from QUEUED (stage 2/3 reschedules) or retry (stage 5).
func (o *Orchestrator) retryHandler(campaignID string) func(ctx context.Context, key string) {
	return func(ctx context.Context, key string) {
		if err := o.Trigger(ctx, campaignID); err != nil {
			logger.Error("orchestrator: retry trigger failed", "campaign_id", campaignID, "error", err.Error())
		}
	}
}
