package segment

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/transact-messaging/internal/domain"
)

// Evaluator implements spec.md §4.4: Evaluate(ruleTree) -> stream of E.164,
// pushed down to SQL, de-duplicated and stably ordered by E.164 ascending so
// paged materialization is resumable via an opaque cursor (the last E.164
// seen). Grounded on internal/segmentation/engine.go's load-tree-then-
// execute pattern.
type Evaluator struct {
	db *sql.DB
}

// NewEvaluator creates an Evaluator over the recipients table.
func NewEvaluator(db *sql.DB) *Evaluator {
	return &Evaluator{db: db}
}

// Page returns up to limit recipient E.164 values matching root (with the
// implicit consent_state=OPT_IN AND already applied by the caller) whose
// E.164 sorts strictly after cursor, plus the cursor to resume from (the
// last E.164 of the page). A page shorter than limit signals the stream is
// exhausted; nextCursor is empty only when the page is empty.
func (e *Evaluator) Page(ctx context.Context, root domain.RuleNode, cursor string, limit int) (page []string, nextCursor string, err error) {
	qb := NewQueryBuilder()
	where, args, err := qb.Build(root)
	if err != nil {
		return nil, "", err
	}

	args = append(args, cursor, limit)
	cursorArg := fmt.Sprintf("$%d", len(args)-1)
	limitArg := fmt.Sprintf("$%d", len(args))

	query := fmt.Sprintf(`
		SELECT r.e164
		FROM recipients r
		WHERE (%s) AND r.e164 > %s
		ORDER BY r.e164 ASC
		LIMIT %s
	`, where, cursorArg, limitArg)

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("segment: evaluate query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e164 string
		if err := rows.Scan(&e164); err != nil {
			return nil, "", fmt.Errorf("segment: scan failed: %w", err)
		}
		page = append(page, e164)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	if len(page) > 0 {
		nextCursor = page[len(page)-1]
	}
	return page, nextCursor, nil
}

// EvaluateAll drains the full resumable stream starting at cursor, calling
// onPage for each page fetched (typically to materialize Messages). Stops
// early if onPage returns an error.
func (e *Evaluator) EvaluateAll(ctx context.Context, root domain.RuleNode, startCursor string, pageSize int, onPage func(page []string, cursor string) error) error {
	cursor := startCursor
	for {
		page, next, err := e.Page(ctx, root, cursor, pageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		if err := onPage(page, next); err != nil {
			return err
		}
		cursor = next
		if len(page) < pageSize {
			return nil
		}
	}
}
