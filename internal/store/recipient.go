package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/transact-messaging/internal/domain"
)

// GetRecipient loads one recipient by E.164 key.
func (s *Store) GetRecipient(ctx context.Context, e164 string) (*domain.Recipient, error) {
	var r domain.Recipient
	var attrs []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT e164, attributes, consent_state, created_at, updated_at
		FROM recipients
		WHERE e164 = $1
	`, e164).Scan(&r.E164, &attrs, &r.Consent, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get recipient: %w", err)
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &r.Attributes); err != nil {
			return nil, fmt.Errorf("store: decode attributes: %w", err)
		}
	}
	return &r, nil
}

// UpsertRecipient inserts a recipient or, on conflict, merges attrs into the
// existing attribute bag (last-write-wins per key) without disturbing an
// already-set consent_state unless the row is new, in which case it starts
// at consent (spec.md §4.6's webhook-driven recipient creation defaults to
// OPT_IN).
func (s *Store) UpsertRecipient(ctx context.Context, e164 string, attrs map[string]interface{}, consent domain.ConsentState) error {
	raw, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("store: encode attributes: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO recipients (e164, attributes, consent_state, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (e164) DO UPDATE
		SET attributes = recipients.attributes || EXCLUDED.attributes,
		    updated_at = NOW()
	`, e164, raw, consent)
	if err != nil {
		return fmt.Errorf("store: upsert recipient: %w", err)
	}
	return nil
}

// UpdateConsent applies the STOP-sticky consent transition and returns the
// state the recipient was in immediately before the update. Creates the
// recipient row (defaulting to OPT_IN before applying newState) if it does
// not already exist, since an inbound keyword can arrive before any webhook
// has ever upserted the sender.
//
// Stickiness is enforced here, inside the row lock, rather than left to the
// caller's own read-then-decide: the `SELECT ... FOR UPDATE` below blocks a
// concurrent STOP and START on the same recipient from interleaving, so a
// stale caller-side check can never commit a write domain.CanTransitionConsent
// would have rejected. A rejected transition returns ErrConflict rather than
// silently dropping the request, mirroring TransitionCampaign/TransitionMessage's
// compare-and-set idiom.
func (s *Store) UpdateConsent(ctx context.Context, e164 string, newState domain.ConsentState, source string, at time.Time) (domain.ConsentState, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("store: begin update consent: %w", err)
	}
	defer tx.Rollback()

	var prior domain.ConsentState
	err = tx.QueryRowContext(ctx, `
		SELECT consent_state FROM recipients WHERE e164 = $1 FOR UPDATE
	`, e164).Scan(&prior)
	switch {
	case err == sql.ErrNoRows:
		prior = domain.ConsentOptIn
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO recipients (e164, attributes, consent_state, created_at, updated_at)
			VALUES ($1, '{}', $2, NOW(), NOW())
		`, e164, prior); err != nil {
			return "", fmt.Errorf("store: seed recipient for consent update: %w", err)
		}
	case err != nil:
		return "", fmt.Errorf("store: lock recipient: %w", err)
	}

	if !domain.CanTransitionConsent(prior, newState) {
		return prior, ErrConflict
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE recipients SET consent_state = $1, updated_at = NOW() WHERE e164 = $2
	`, newState, e164); err != nil {
		return "", fmt.Errorf("store: update consent: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("store: commit update consent: %w", err)
	}
	return prior, nil
}
