package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/transact-messaging/internal/domain"
)

// GetSegment loads a persisted rule tree by id.
func (s *Store) GetSegment(ctx context.Context, id string) (*domain.Segment, error) {
	var seg domain.Segment
	var root []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, root FROM segments WHERE id = $1
	`, id).Scan(&seg.ID, &seg.Name, &root)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get segment: %w", err)
	}
	if err := json.Unmarshal(root, &seg.Root); err != nil {
		return nil, fmt.Errorf("store: decode segment root: %w", err)
	}
	return &seg, nil
}

// CreateSegment persists a parsed rule tree under a name.
func (s *Store) CreateSegment(ctx context.Context, name string, root domain.RuleNode) (string, error) {
	raw, err := json.Marshal(root)
	if err != nil {
		return "", fmt.Errorf("store: encode segment root: %w", err)
	}
	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO segments (id, name, root, created_at) VALUES ($1, $2, $3, NOW())
	`, id, name, raw)
	if err != nil {
		return "", fmt.Errorf("store: create segment: %w", err)
	}
	return id, nil
}

// GetTemplate loads a template by id.
func (s *Store) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	var t domain.Template
	var vars pq.StringArray
	err := s.db.QueryRowContext(ctx, `
		SELECT id, channel, locale, content, variables FROM templates WHERE id = $1
	`, id).Scan(&t.ID, &t.Channel, &t.Locale, &t.Content, &vars)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get template: %w", err)
	}
	t.Variables = []string(vars)
	return &t, nil
}

// CreateTemplate persists a rendered-content template and its declared
// variable list.
func (s *Store) CreateTemplate(ctx context.Context, t *domain.Template) (string, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO templates (id, channel, locale, content, variables, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, t.ID, t.Channel, t.Locale, t.Content, pq.Array(t.Variables))
	if err != nil {
		return "", fmt.Errorf("store: create template: %w", err)
	}
	return t.ID, nil
}

// ListRecipientsMatching delegates to an internal/segment Evaluator so
// campaign materialization and ad-hoc segment preview share one pushdown
// implementation against the recipients table.
type SegmentEvaluator interface {
	Page(ctx context.Context, root domain.RuleNode, cursor string, limit int) (page []string, nextCursor string, err error)
}

func (s *Store) ListRecipientsMatching(ctx context.Context, eval SegmentEvaluator, root domain.RuleNode, cursor string, limit int) ([]string, string, error) {
	return eval.Page(ctx, root, cursor, limit)
}
