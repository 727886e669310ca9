package segment

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/segflow/internal/db"
	"github.com/ignite/segflow/internal/engine"
)

// Store provides database operations for segments, their derived event
// triggers, and segment memberships.
type Store struct {
	db db.DBTX
}

// NewStore creates a segment store over a pool or transaction.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{db: dbtx}
}

// Create inserts a segment and its extracted event triggers.
func (s *Store) Create(ctx context.Context, seg *Segment) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO segments (id, evaluator) VALUES (?, ?)`,
		seg.ID, seg.Evaluator); err != nil {
		return fmt.Errorf("insert segment: %w", err)
	}
	return s.replaceTriggers(ctx, seg.ID, ExtractEventTriggers(seg.Evaluator))
}

// Update rewrites a segment's evaluator and rederives its triggers.
func (s *Store) Update(ctx context.Context, seg *Segment) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE segments SET evaluator = ? WHERE id = ?`,
		seg.Evaluator, seg.ID)
	if err != nil {
		return fmt.Errorf("update segment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.Get(ctx, seg.ID); err != nil {
			return err
		}
	}
	return s.replaceTriggers(ctx, seg.ID, ExtractEventTriggers(seg.Evaluator))
}

func (s *Store) replaceTriggers(ctx context.Context, segmentID string, events []string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM segment_event_triggers WHERE segment_id = ?`, segmentID); err != nil {
		return fmt.Errorf("clear triggers: %w", err)
	}
	for _, event := range events {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO segment_event_triggers (segment_id, event) VALUES (?, ?)`,
			segmentID, event); err != nil {
			return fmt.Errorf("insert trigger: %w", err)
		}
	}
	return nil
}

// Delete removes a segment. Memberships and triggers cascade.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM segments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete segment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.NotFound("segment", id)
	}
	return nil
}

// Get loads one segment.
func (s *Store) Get(ctx context.Context, id string) (*Segment, error) {
	var seg Segment
	err := s.db.QueryRowContext(ctx,
		`SELECT id, evaluator FROM segments WHERE id = ?`, id).
		Scan(&seg.ID, &seg.Evaluator)
	if err == sql.ErrNoRows {
		return nil, engine.NotFound("segment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get segment: %w", err)
	}
	return &seg, nil
}

// List returns all segments ordered by id.
func (s *Store) List(ctx context.Context) ([]Segment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, evaluator FROM segments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	var segments []Segment
	for rows.Next() {
		var seg Segment
		if err := rows.Scan(&seg.ID, &seg.Evaluator); err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// ListTriggeredBy returns segments whose trigger set contains event.
func (s *Store) ListTriggeredBy(ctx context.Context, event string) ([]Segment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.evaluator FROM segments s
		JOIN segment_event_triggers t ON t.segment_id = s.id
		WHERE t.event = ? ORDER BY s.id`, event)
	if err != nil {
		return nil, fmt.Errorf("list triggered segments: %w", err)
	}
	defer rows.Close()

	var segments []Segment
	for rows.Next() {
		var seg Segment
		if err := rows.Scan(&seg.ID, &seg.Evaluator); err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// Triggers returns the stored trigger set for a segment.
func (s *Store) Triggers(ctx context.Context, segmentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event FROM segment_event_triggers WHERE segment_id = ? ORDER BY event`, segmentID)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	defer rows.Close()

	var events []string
	for rows.Next() {
		var event string
		if err := rows.Scan(&event); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// ReferencedByCampaign reports whether any campaign includes or
// excludes the segment.
func (s *Store) ReferencedByCampaign(ctx context.Context, segmentID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM campaign_segments WHERE segment_id = ?`, segmentID).
		Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count campaign references: %w", err)
	}
	return count > 0, nil
}

// Members returns the current membership of a segment.
func (s *Store) Members(ctx context.Context, segmentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM segment_memberships WHERE segment_id = ? ORDER BY user_id`, segmentID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// SegmentsForUser returns the ids of segments the user belongs to.
func (s *Store) SegmentsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT segment_id FROM segment_memberships WHERE user_id = ? ORDER BY segment_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user segments: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) addMember(ctx context.Context, userID, segmentID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT IGNORE INTO segment_memberships (user_id, segment_id) VALUES (?, ?)`,
		userID, segmentID)
	if err != nil {
		return fmt.Errorf("add membership: %w", err)
	}
	return nil
}

func (s *Store) removeMember(ctx context.Context, userID, segmentID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM segment_memberships WHERE user_id = ? AND segment_id = ?`,
		userID, segmentID)
	if err != nil {
		return fmt.Errorf("remove membership: %w", err)
	}
	return nil
}

func (s *Store) isMember(ctx context.Context, userID, segmentID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM segment_memberships WHERE user_id = ? AND segment_id = ?`,
		userID, segmentID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return true, nil
}
