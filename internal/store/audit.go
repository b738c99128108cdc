package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/transact-messaging/internal/domain"
)

// AppendAudit writes one append-only pipeline-stage outcome. Audit writes
// are never updated or deleted, only inserted.
func (s *Store) AppendAudit(ctx context.Context, rec domain.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.At.IsZero() {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO audit_records (id, campaign_id, message_id, stage, outcome, reason, detail, at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		`, rec.ID, nullIfEmpty(rec.CampaignID), rec.MessageID, rec.Stage, rec.Outcome, rec.Reason, rec.Detail)
		if err != nil {
			return fmt.Errorf("store: append audit: %w", err)
		}
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_records (id, campaign_id, message_id, stage, outcome, reason, detail, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, nullIfEmpty(rec.CampaignID), rec.MessageID, rec.Stage, rec.Outcome, rec.Reason, rec.Detail, rec.At)
	if err != nil {
		return fmt.Errorf("store: append audit: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// InsertRawInbound persists a raw inbound webhook payload unconditionally,
// before any parsing, per spec.md §4.6's "capture first, never fail the
// request" rule.
func (s *Store) InsertRawInbound(ctx context.Context, payload string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inbound_events (id, raw_payload, received_at) VALUES ($1, $2, NOW())
	`, id, payload)
	if err != nil {
		return "", fmt.Errorf("store: insert raw inbound: %w", err)
	}
	return id, nil
}

// EnrichInbound fills in the parsed fields of a previously-captured raw
// inbound event once parsing succeeds.
func (s *Store) EnrichInbound(ctx context.Context, id, fromE164, normalizedBody, providerMessageID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE inbound_events SET from_e164 = $1, normalized_body = $2, provider_message_id = $3
		WHERE id = $4
	`, fromE164, normalizedBody, providerMessageID, id)
	if err != nil {
		return fmt.Errorf("store: enrich inbound: %w", err)
	}
	return nil
}

// InsertRawReceipt persists a raw status-callback payload unconditionally.
func (s *Store) InsertRawReceipt(ctx context.Context, payload string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_receipts (id, raw_payload, received_at) VALUES ($1, $2, NOW())
	`, id, payload)
	if err != nil {
		return "", fmt.Errorf("store: insert raw receipt: %w", err)
	}
	return id, nil
}

// EnrichReceipt fills in the parsed fields of a previously-captured raw
// status-callback row.
func (s *Store) EnrichReceipt(ctx context.Context, id, providerSid, status, errorCode string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE delivery_receipts SET provider_sid = $1, status = $2, error_code = $3
		WHERE id = $4
	`, providerSid, status, errorCode, id)
	if err != nil {
		return fmt.Errorf("store: enrich receipt: %w", err)
	}
	return nil
}

// UpsertWorkerHeartbeat records operational liveness; not tied to any
// message-delivery invariant.
func (s *Store) UpsertWorkerHeartbeat(ctx context.Context, hb domain.WorkerHeartbeat) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO worker_heartbeats (worker_id, hostname, status, started_at, last_heartbeat_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (worker_id) DO UPDATE
		SET status = EXCLUDED.status, last_heartbeat_at = NOW()
	`, hb.WorkerID, hb.Hostname, hb.Status, hb.StartedAt)
	if err != nil {
		return fmt.Errorf("store: upsert heartbeat: %w", err)
	}
	return nil
}
