package campaign

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ignite/segflow/internal/db"
	"github.com/ignite/segflow/internal/engine"
)

// Store provides database operations for campaigns, their segment
// references, and campaign memberships.
type Store struct {
	db db.DBTX
}

// NewStore creates a campaign store over a pool or transaction.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{db: dbtx}
}

// Create inserts a campaign and its include/exclude segment rows.
func (s *Store) Create(ctx context.Context, c *Campaign) error {
	if len(c.Segments) == 0 {
		return engine.Validationf("campaign %s must include at least one segment", c.ID)
	}
	if !c.Behavior.Valid() {
		return engine.Validationf("campaign %s has unknown behavior %q", c.ID, c.Behavior)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO campaigns (id, flow, behavior) VALUES (?, ?, ?)`,
		c.ID, c.Flow, string(c.Behavior)); err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	for _, segID := range c.Segments {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO campaign_segments (campaign_id, segment_id, kind) VALUES (?, ?, 'include')`,
			c.ID, segID); err != nil {
			return fmt.Errorf("insert include segment: %w", err)
		}
	}
	for _, segID := range c.ExcludeSegments {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO campaign_segments (campaign_id, segment_id, kind) VALUES (?, ?, 'exclude')`,
			c.ID, segID); err != nil {
			return fmt.Errorf("insert exclude segment: %w", err)
		}
	}
	return nil
}

// Delete removes a campaign row; segment references and memberships
// cascade. Execution teardown is the caller's job.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM campaigns WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.NotFound("campaign", id)
	}
	return nil
}

// Get loads one campaign with its segment lists.
func (s *Store) Get(ctx context.Context, id string) (*Campaign, error) {
	var c Campaign
	var behavior string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, flow, behavior FROM campaigns WHERE id = ?`, id).
		Scan(&c.ID, &c.Flow, &behavior)
	if err == sql.ErrNoRows {
		return nil, engine.NotFound("campaign", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	c.Behavior = Behavior(behavior)
	if err := s.loadSegments(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns all campaigns with segment lists, ordered by id.
func (s *Store) List(ctx context.Context) ([]Campaign, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, flow, behavior FROM campaigns ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []Campaign
	for rows.Next() {
		var c Campaign
		var behavior string
		if err := rows.Scan(&c.ID, &c.Flow, &behavior); err != nil {
			return nil, err
		}
		c.Behavior = Behavior(behavior)
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range campaigns {
		if err := s.loadSegments(ctx, &campaigns[i]); err != nil {
			return nil, err
		}
	}
	return campaigns, nil
}

func (s *Store) loadSegments(ctx context.Context, c *Campaign) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT segment_id, kind FROM campaign_segments WHERE campaign_id = ? ORDER BY segment_id`, c.ID)
	if err != nil {
		return fmt.Errorf("load campaign segments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var segID, kind string
		if err := rows.Scan(&segID, &kind); err != nil {
			return err
		}
		if kind == "exclude" {
			c.ExcludeSegments = append(c.ExcludeSegments, segID)
		} else {
			c.Segments = append(c.Segments, segID)
		}
	}
	return rows.Err()
}

// ListReferencingSegment returns campaigns whose include or exclude set
// contains the segment.
func (s *Store) ListReferencingSegment(ctx context.Context, segmentID string) ([]Campaign, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT campaign_id FROM campaign_segments WHERE segment_id = ?`, segmentID)
	if err != nil {
		return nil, fmt.Errorf("list referencing campaigns: %w", err)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var campaigns []Campaign
	for _, id := range ids {
		c, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, nil
}

// IsMember reports whether the user belongs to the campaign.
func (s *Store) IsMember(ctx context.Context, userID, campaignID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM campaign_memberships WHERE user_id = ? AND campaign_id = ?`,
		userID, campaignID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check campaign membership: %w", err)
	}
	return true, nil
}

// AddMember enrolls a user.
func (s *Store) AddMember(ctx context.Context, userID, campaignID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT IGNORE INTO campaign_memberships (user_id, campaign_id) VALUES (?, ?)`,
		userID, campaignID)
	if err != nil {
		return fmt.Errorf("add campaign membership: %w", err)
	}
	return nil
}

// RemoveMember evicts a user.
func (s *Store) RemoveMember(ctx context.Context, userID, campaignID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM campaign_memberships WHERE user_id = ? AND campaign_id = ?`,
		userID, campaignID)
	if err != nil {
		return fmt.Errorf("remove campaign membership: %w", err)
	}
	return nil
}

// Members returns the user ids enrolled in a campaign.
func (s *Store) Members(ctx context.Context, campaignID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM campaign_memberships WHERE campaign_id = ? ORDER BY user_id`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list campaign members: %w", err)
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

// MatchingUsers computes, in one query over materialized segment
// memberships, the users present in every include segment and absent
// from all exclude segments.
func (s *Store) MatchingUsers(ctx context.Context, includes, excludes []string) ([]string, error) {
	if len(includes) == 0 {
		return nil, nil
	}

	var b strings.Builder
	args := make([]interface{}, 0, len(includes)+len(excludes)+1)

	b.WriteString(`SELECT user_id FROM segment_memberships WHERE segment_id IN (`)
	b.WriteString(placeholders(len(includes)))
	b.WriteString(`)`)
	for _, id := range includes {
		args = append(args, id)
	}

	if len(excludes) > 0 {
		b.WriteString(` AND user_id NOT IN (SELECT user_id FROM segment_memberships WHERE segment_id IN (`)
		b.WriteString(placeholders(len(excludes)))
		b.WriteString(`))`)
		for _, id := range excludes {
			args = append(args, id)
		}
	}

	b.WriteString(` GROUP BY user_id HAVING COUNT(DISTINCT segment_id) = ?`)
	args = append(args, len(includes))

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("matching users: %w", err)
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

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
