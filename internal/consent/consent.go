// Package consent implements spec.md §4.5: eligibility checks and the
// STOP/START keyword state machine. Grounded on the teacher's
// SubscriberStatus enum (internal/domain, now domain.ConsentState) and the
// sticky-suppression idiom in internal/repository/postgres/suppression.go
// ("active until explicitly reversed" — the same shape as STOP-stickiness).
package consent

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ignite/transact-messaging/internal/domain"
	"github.com/ignite/transact-messaging/internal/store"
)

// Store is the subset of internal/store.Store this package depends on.
type Store interface {
	GetRecipient(ctx context.Context, e164 string) (*domain.Recipient, error)
	UpsertRecipient(ctx context.Context, e164 string, attrs map[string]interface{}, consent domain.ConsentState) error
	UpdateConsent(ctx context.Context, e164 string, newState domain.ConsentState, source string, at time.Time) (domain.ConsentState, error)
	AppendAudit(ctx context.Context, rec domain.AuditRecord) error
}

// Service implements ConsentService.
type Service struct {
	store Store
}

// NewService creates a consent Service over the given Store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

var stopKeywords = map[string]bool{
	"STOP": true, "QUIT": true, "CANCEL": true, "UNSUBSCRIBE": true, "END": true,
}

var startKeywords = map[string]bool{
	"START": true, "UNSTOP": true,
}

// EligibilityResult is the outcome of IsEligible.
type EligibilityResult struct {
	OK     bool
	Reason domain.ConsentState
}

// IsEligible reports whether e164 currently has OPT_IN consent.
func (s *Service) IsEligible(ctx context.Context, e164 string) (EligibilityResult, error) {
	r, err := s.store.GetRecipient(ctx, e164)
	if err != nil {
		return EligibilityResult{}, err
	}
	if r.Consent == domain.ConsentOptIn {
		return EligibilityResult{OK: true}, nil
	}
	return EligibilityResult{OK: false, Reason: r.Consent}, nil
}

// ApplyInboundKeyword applies the STOP/START keyword policy of spec.md §4.5:
// STOP-family keywords always transition to STOP; START-family keywords
// only move OPT_OUT->OPT_IN, never STOP->OPT_IN ("STOP is sticky against
// START by default" per the Open Question resolution in DESIGN.md). An
// audit entry is emitted whether or not the keyword changed anything.
//
// Stickiness is not decided here by a read-then-write check — that would
// race a concurrent STOP and START on the same recipient. Each keyword
// issues exactly one store.UpdateConsent call and lets it enforce
// domain.CanTransitionConsent under its own row lock; a store.ErrConflict
// means the transition was correctly rejected, not a failure to report.
func (s *Service) ApplyInboundKeyword(ctx context.Context, e164, body string, at time.Time) error {
	word := strings.ToUpper(strings.TrimSpace(body))

	var outcome domain.AuditOutcome
	var reason string

	switch {
	case stopKeywords[word]:
		if _, err := s.store.UpdateConsent(ctx, e164, domain.ConsentStop, "inbound_keyword", at); err != nil {
			return err
		}
		outcome = domain.AuditAdmitted
		reason = "stop_keyword"

	case startKeywords[word]:
		_, err := s.store.UpdateConsent(ctx, e164, domain.ConsentOptIn, "inbound_keyword", at)
		switch {
		case err == nil:
			outcome = domain.AuditAdmitted
			reason = "start_keyword_reopt"
		case errors.Is(err, store.ErrConflict):
			outcome = domain.AuditSkipped
			reason = "start_keyword_ignored_not_opt_out"
		default:
			return err
		}

	default:
		outcome = domain.AuditSkipped
		reason = "no_keyword_match"
	}

	return s.store.AppendAudit(ctx, domain.AuditRecord{
		CampaignID: "",
		MessageID:  nil,
		Stage:      "consent_keyword",
		Outcome:    outcome,
		Reason:     reason,
		At:         at,
	})
}
