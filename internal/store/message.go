package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/transact-messaging/internal/domain"
)

// CreateMessage materializes one Message in QUEUED status.
func (s *Store) CreateMessage(ctx context.Context, campaignID, e164, rendered string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages
			(id, campaign_id, recipient_e164, rendered_content, status, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, NOW())
	`, id, campaignID, e164, rendered, domain.MessageQueued)
	if err != nil {
		return "", fmt.Errorf("store: create message: %w", err)
	}
	return id, nil
}

// TransitionMessage is the only mutator of Message.Status: a compare-and-set
// update that succeeds only when the row's current status still matches
// from, grounded on the teacher's UpdateStatus RowsAffected()==0 idiom.
// extra carries optional field updates applied alongside the transition
// (provider_sid, error_code, sent_at, delivered_at, retry_count).
func (s *Store) TransitionMessage(ctx context.Context, id string, from, to domain.MessageStatus, extra MessageFields) error {
	sets := []string{"status = $1", "updated_status_at = NOW()"}
	args := []interface{}{to}
	idx := 2

	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}
	if extra.ProviderSid != nil {
		add("provider_sid", *extra.ProviderSid)
	}
	if extra.ErrorCode != nil {
		add("error_code", *extra.ErrorCode)
	}
	if extra.SentAt != nil {
		add("sent_at", *extra.SentAt)
	}
	if extra.DeliveredAt != nil {
		add("delivered_at", *extra.DeliveredAt)
	}
	if extra.RetryCount != nil {
		add("retry_count", *extra.RetryCount)
	}

	q := "UPDATE messages SET " + joinComma(sets) +
		fmt.Sprintf(" WHERE id = $%d AND status = $%d", idx, idx+1)
	args = append(args, id, from)

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("store: transition message: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// MessageFields carries the optional column updates a state transition may
// apply alongside the new status.
type MessageFields struct {
	ProviderSid *string
	ErrorCode   *string
	SentAt      *time.Time
	DeliveredAt *time.Time
	RetryCount  *int
}

// GetMessage loads one message by id.
func (s *Store) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	return s.scanMessage(s.db.QueryRowContext(ctx, `
		SELECT id, campaign_id, recipient_e164, rendered_content, status,
		       provider_sid, error_code, retry_count, created_at, sent_at, delivered_at
		FROM messages WHERE id = $1
	`, id))
}

// FindMessageByProviderSid locates the message a status callback refers to.
func (s *Store) FindMessageByProviderSid(ctx context.Context, sid string) (*domain.Message, error) {
	return s.scanMessage(s.db.QueryRowContext(ctx, `
		SELECT id, campaign_id, recipient_e164, rendered_content, status,
		       provider_sid, error_code, retry_count, created_at, sent_at, delivered_at
		FROM messages WHERE provider_sid = $1
	`, sid))
}

func (s *Store) scanMessage(row *sql.Row) (*domain.Message, error) {
	var m domain.Message
	var providerSid, errorCode sql.NullString
	var sentAt, deliveredAt sql.NullTime
	err := row.Scan(
		&m.ID, &m.CampaignID, &m.RecipientE164, &m.RenderedContent, &m.Status,
		&providerSid, &errorCode, &m.RetryCount, &m.CreatedAt, &sentAt, &deliveredAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan message: %w", err)
	}
	if providerSid.Valid {
		m.ProviderSid = &providerSid.String
	}
	if errorCode.Valid {
		m.ErrorCode = &errorCode.String
	}
	if sentAt.Valid {
		m.SentAt = &sentAt.Time
	}
	if deliveredAt.Valid {
		m.DeliveredAt = &deliveredAt.Time
	}
	return &m, nil
}

// ListMessagesByCampaign returns all of a campaign's messages in one
// result, optionally filtered to the given statuses; it does not page.
func (s *Store) ListMessagesByCampaign(ctx context.Context, campaignID string, statuses []domain.MessageStatus) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, campaign_id, recipient_e164, rendered_content, status,
		       provider_sid, error_code, retry_count, created_at, sent_at, delivered_at
		FROM messages
		WHERE campaign_id = $1 AND ($2::text[] IS NULL OR status = ANY($2::text[]))
		ORDER BY created_at ASC
	`, campaignID, statusSliceOrNil(statuses))
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		var providerSid, errorCode sql.NullString
		var sentAt, deliveredAt sql.NullTime
		if err := rows.Scan(
			&m.ID, &m.CampaignID, &m.RecipientE164, &m.RenderedContent, &m.Status,
			&providerSid, &errorCode, &m.RetryCount, &m.CreatedAt, &sentAt, &deliveredAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan message row: %w", err)
		}
		if providerSid.Valid {
			m.ProviderSid = &providerSid.String
		}
		if errorCode.Valid {
			m.ErrorCode = &errorCode.String
		}
		if sentAt.Valid {
			m.SentAt = &sentAt.Time
		}
		if deliveredAt.Valid {
			m.DeliveredAt = &deliveredAt.Time
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func statusSliceOrNil(statuses []domain.MessageStatus) interface{} {
	if len(statuses) == 0 {
		return nil
	}
	strs := make([]string, len(statuses))
	for i, st := range statuses {
		strs[i] = string(st)
	}
	return pq.Array(strs)
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
