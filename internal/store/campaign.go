package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/transact-messaging/internal/domain"
)

// GetCampaign loads one campaign by id.
func (s *Store) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	var c domain.Campaign
	var scheduleAt, materializedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, topic, template_id, segment_id, schedule_at, status, rate_limit,
		       quiet_start, quiet_end, quiet_timezone, quiet_overnight,
		       cursor, materialized_at, created_at, updated_at
		FROM campaigns WHERE id = $1
	`, id).Scan(
		&c.ID, &c.Topic, &c.TemplateID, &c.SegmentID, &scheduleAt, &c.Status, &c.RateLimit,
		&c.QuietHours.Start, &c.QuietHours.End, &c.QuietHours.Timezone, &c.QuietHours.Overnight,
		&c.Cursor, &materializedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get campaign: %w", err)
	}
	if scheduleAt.Valid {
		c.ScheduleAt = &scheduleAt.Time
	}
	if materializedAt.Valid {
		c.MaterializedAt = &materializedAt.Time
	}
	return &c, nil
}

// CreateCampaign inserts a new campaign in DRAFT status.
func (s *Store) CreateCampaign(ctx context.Context, c *domain.Campaign) (string, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campaigns
			(id, topic, template_id, segment_id, schedule_at, status, rate_limit,
			 quiet_start, quiet_end, quiet_timezone, quiet_overnight,
			 cursor, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, '', NOW(), NOW())
	`, c.ID, c.Topic, c.TemplateID, c.SegmentID, c.ScheduleAt, domain.CampaignDraft, c.RateLimit,
		c.QuietHours.Start, c.QuietHours.End, c.QuietHours.Timezone, c.QuietHours.Overnight)
	if err != nil {
		return "", fmt.Errorf("store: create campaign: %w", err)
	}
	return c.ID, nil
}

// TransitionCampaign is a compare-and-set status update: it only checks
// that the from-status is still current, same RowsAffected()==0 idiom as
// TransitionMessage. Neither it nor its callers consult
// domain.CanTransition.
func (s *Store) TransitionCampaign(ctx context.Context, id string, from, to domain.CampaignStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE campaigns SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return fmt.Errorf("store: transition campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// AdvanceCampaignCursor persists the materialization resume cursor.
func (s *Store) AdvanceCampaignCursor(ctx context.Context, id, cursor string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE campaigns SET cursor = $1, updated_at = NOW() WHERE id = $2
	`, cursor, id)
	if err != nil {
		return fmt.Errorf("store: advance cursor: %w", err)
	}
	return nil
}

// ListDueCampaigns returns the ids of campaigns the worker pool should
// drive this poll cycle: READY campaigns whose schedule_time has arrived
// (or carry none), plus any already-RUNNING campaign still mid-flight.
func (s *Store) ListDueCampaigns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM campaigns
		WHERE status = $1
		   OR (status = $2 AND (schedule_at IS NULL OR schedule_at <= NOW()))
	`, domain.CampaignRunning, domain.CampaignReady)
	if err != nil {
		return nil, fmt.Errorf("store: list due campaigns: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan due campaign: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkMaterialized stamps the campaign as fully materialized.
func (s *Store) MarkMaterialized(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE campaigns SET materialized_at = NOW(), updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("store: mark materialized: %w", err)
	}
	return nil
}
