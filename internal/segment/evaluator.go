package segment

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ignite/segflow/internal/db"
	"github.com/ignite/segflow/internal/engine"
)

// Evaluator runs segment SQL against the store and keeps the
// segment_memberships table equal to SQL truth.
type Evaluator struct {
	db    db.DBTX
	store *Store
}

// NewEvaluator creates an evaluator bound to a pool or transaction.
func NewEvaluator(dbtx db.DBTX) *Evaluator {
	return &Evaluator{db: dbtx, store: NewStore(dbtx)}
}

// ValidateEvaluator applies the cheap structural checks done at write
// time. Dialect errors surface when the SQL first runs; a query the
// trigger parser cannot understand is still accepted.
func ValidateEvaluator(evaluator string) error {
	trimmed := strings.TrimSpace(evaluator)
	if trimmed == "" {
		return engine.Validationf("segment evaluator must not be empty")
	}
	if strings.Contains(strings.TrimRight(trimmed, "; \t\n"), ";") {
		return engine.Validationf("segment evaluator must be a single statement")
	}
	return nil
}

// EvaluateGlobal runs a segment's SQL, diffs the id column against the
// current membership rows, and applies the diff.
func (e *Evaluator) EvaluateGlobal(ctx context.Context, segmentID string) (*Changes, error) {
	seg, err := e.store.Get(ctx, segmentID)
	if err != nil {
		return nil, err
	}

	matched, err := e.runEvaluator(ctx, seg.Evaluator)
	if err != nil {
		return nil, err
	}

	current := make(map[string]bool)
	members, err := e.store.Members(ctx, segmentID)
	if err != nil {
		return nil, err
	}
	for _, id := range members {
		current[id] = true
	}

	changes := &Changes{Total: len(matched)}
	for id := range matched {
		if !current[id] {
			if err := e.store.addMember(ctx, id, segmentID); err != nil {
				return nil, err
			}
			changes.Added = append(changes.Added, id)
		}
	}
	for id := range current {
		if !matched[id] {
			if err := e.store.removeMember(ctx, id, segmentID); err != nil {
				return nil, err
			}
			changes.Removed = append(changes.Removed, id)
		}
	}
	return changes, nil
}

// EvaluateForUser re-checks every segment for one user, flipping
// membership rows whose truth changed.
func (e *Evaluator) EvaluateForUser(ctx context.Context, userID string) error {
	segments, err := e.store.List(ctx)
	if err != nil {
		return err
	}
	return e.evaluateUserAgainst(ctx, userID, segments)
}

// EvaluateForUserOnEvent behaves like EvaluateForUser restricted to
// segments whose trigger set contains eventName.
func (e *Evaluator) EvaluateForUserOnEvent(ctx context.Context, userID, eventName string) error {
	segments, err := e.store.ListTriggeredBy(ctx, eventName)
	if err != nil {
		return err
	}
	return e.evaluateUserAgainst(ctx, userID, segments)
}

func (e *Evaluator) evaluateUserAgainst(ctx context.Context, userID string, segments []Segment) error {
	for _, seg := range segments {
		matches, err := e.matchesUser(ctx, seg.Evaluator, userID)
		if err != nil {
			return fmt.Errorf("segment %s: %w", seg.ID, err)
		}
		member, err := e.store.isMember(ctx, userID, seg.ID)
		if err != nil {
			return err
		}
		switch {
		case matches && !member:
			if err := e.store.addMember(ctx, userID, seg.ID); err != nil {
				return err
			}
		case !matches && member:
			if err := e.store.removeMember(ctx, userID, seg.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// matchesUser scopes an evaluator to a single user by wrapping it in a
// CTE, so the segment SQL itself stays opaque to the engine.
func (e *Evaluator) matchesUser(ctx context.Context, evaluator, userID string) (bool, error) {
	wrapped := fmt.Sprintf("WITH m AS (%s) SELECT id FROM m WHERE id = ?", stripTrailingSemicolon(evaluator))
	var id string
	err := e.db.QueryRowContext(ctx, wrapped, userID).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("scoped evaluation: %w", err)
	}
	return true, nil
}

// Preview runs an evaluator read-only and returns the matching ids
// without touching membership rows.
func (e *Evaluator) Preview(ctx context.Context, evaluator string) ([]string, error) {
	if err := ValidateEvaluator(evaluator); err != nil {
		return nil, err
	}
	matched, err := e.runEvaluator(ctx, evaluator)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(matched))
	for id := range matched {
		ids = append(ids, id)
	}
	return ids, nil
}

// runEvaluator executes the stored SQL and collects the id column. Any
// extra columns in the result set are ignored.
func (e *Evaluator) runEvaluator(ctx context.Context, evaluator string) (map[string]bool, error) {
	rows, err := e.db.QueryContext(ctx, stripTrailingSemicolon(evaluator))
	if err != nil {
		return nil, engine.Validationf("segment evaluator failed: %v", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	idIdx := -1
	for i, col := range cols {
		if strings.EqualFold(col, "id") {
			idIdx = i
			break
		}
	}
	if idIdx < 0 {
		return nil, engine.Validationf("segment evaluator must return an id column")
	}

	matched := make(map[string]bool)
	scan := make([]interface{}, len(cols))
	for i := range scan {
		scan[i] = new(sql.RawBytes)
	}
	for rows.Next() {
		if err := rows.Scan(scan...); err != nil {
			return nil, err
		}
		id := string(*scan[idIdx].(*sql.RawBytes))
		if id != "" {
			matched[id] = true
		}
	}
	return matched, rows.Err()
}

func stripTrailingSemicolon(sqlText string) string {
	return strings.TrimRight(strings.TrimSpace(sqlText), "; \t\n")
}
