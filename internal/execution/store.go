// Package execution owns the executions and execution_history tables
// and the periodic executor that advances flows one yield at a time.
package execution

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/segflow/internal/db"
)

// Status values for an execution row.
const (
	StatusPending    = "pending"
	StatusSleeping   = "sleeping"
	StatusRunning    = "running"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusTerminated = "terminated"
)

// Execution is the live state of one user's traversal of one
// campaign's flow. Primary key (user, campaign).
type Execution struct {
	UserID     string    `json:"userId"`
	CampaignID string    `json:"campaignId"`
	Status     string    `json:"status"`
	SleepUntil time.Time `json:"sleepUntil"`
	Error      *string   `json:"error,omitempty"`
}

// HistoryStep records the attribute snapshot a flow observed just
// before yielding the step of the same index.
type HistoryStep struct {
	StepIndex  int                    `json:"stepIndex"`
	Attributes map[string]interface{} `json:"attributes"`
}

// Store provides state transitions for execution rows.
type Store struct {
	db db.DBTX
}

// NewStore creates an execution store over a pool or transaction.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{db: dbtx}
}

// Create inserts a pending execution due immediately.
func (s *Store) Create(ctx context.Context, userID, campaignID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (user_id, campaign_id, status, sleep_until) VALUES (?, ?, ?, ?)`,
		userID, campaignID, StatusPending, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("create execution: %w", err)
	}
	return nil
}

// Exists reports whether an execution row exists for the pair, in any
// status. Terminal rows count: they block dynamic reentry.
func (s *Store) Exists(ctx context.Context, userID, campaignID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM executions WHERE user_id = ? AND campaign_id = ?`,
		userID, campaignID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check execution: %w", err)
	}
	return true, nil
}

// SleepUntil parks the execution until ts.
func (s *Store) SleepUntil(ctx context.Context, userID, campaignID string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status = ?, sleep_until = ? WHERE user_id = ? AND campaign_id = ?`,
		StatusSleeping, ts.UTC(), userID, campaignID)
	if err != nil {
		return fmt.Errorf("sleep execution: %w", err)
	}
	return nil
}

// Complete marks the flow finished.
func (s *Store) Complete(ctx context.Context, userID, campaignID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status = ? WHERE user_id = ? AND campaign_id = ?`,
		StatusCompleted, userID, campaignID)
	if err != nil {
		return fmt.Errorf("complete execution: %w", err)
	}
	return nil
}

// Fail records a terminal failure with its message.
func (s *Store) Fail(ctx context.Context, userID, campaignID, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status = ?, error = ? WHERE user_id = ? AND campaign_id = ?`,
		StatusFailed, message, userID, campaignID)
	if err != nil {
		return fmt.Errorf("fail execution: %w", err)
	}
	return nil
}

// Terminate stops an execution early with a human-readable reason.
// Idempotent: a missing row is not an error.
func (s *Store) Terminate(ctx context.Context, userID, campaignID, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status = ?, error = ? WHERE user_id = ? AND campaign_id = ?`,
		StatusTerminated, reason, userID, campaignID)
	if err != nil {
		return fmt.Errorf("terminate execution: %w", err)
	}
	return nil
}

// ClaimDue locks every due pending/sleeping row and flips it to
// running within the caller's transaction. The returned rows carry
// their pre-claim status, which the executor needs to decide whether
// history exists.
func (s *Store) ClaimDue(ctx context.Context, now time.Time) ([]Execution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, campaign_id, status, sleep_until FROM executions
		WHERE status IN (?, ?) AND sleep_until <= ?
		ORDER BY sleep_until FOR UPDATE`,
		StatusPending, StatusSleeping, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("claim due: %w", err)
	}
	defer rows.Close()

	var claimed []Execution
	for rows.Next() {
		var e Execution
		if err := rows.Scan(&e.UserID, &e.CampaignID, &e.Status, &e.SleepUntil); err != nil {
			return nil, err
		}
		claimed = append(claimed, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, e := range claimed {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE executions SET status = ? WHERE user_id = ? AND campaign_id = ?`,
			StatusRunning, e.UserID, e.CampaignID); err != nil {
			return nil, fmt.Errorf("mark running: %w", err)
		}
	}
	return claimed, nil
}

// AppendHistory records the attribute snapshot for one advanced step.
func (s *Store) AppendHistory(ctx context.Context, userID, campaignID string, stepIndex int, attrs map[string]interface{}) error {
	doc, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("marshal history attributes: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO execution_history (user_id, campaign_id, step_index, attributes) VALUES (?, ?, ?, ?)`,
		userID, campaignID, stepIndex, doc)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// History returns the recorded steps for a pair ordered by index.
func (s *Store) History(ctx context.Context, userID, campaignID string) ([]HistoryStep, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT step_index, attributes FROM execution_history
		WHERE user_id = ? AND campaign_id = ? ORDER BY step_index`,
		userID, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var steps []HistoryStep
	for rows.Next() {
		var step HistoryStep
		var doc []byte
		if err := rows.Scan(&step.StepIndex, &doc); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(doc, &step.Attributes); err != nil {
			return nil, fmt.Errorf("decode history attributes: %w", err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// ListForUser returns all execution rows for a user.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]Execution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, campaign_id, status, sleep_until, error FROM executions
		WHERE user_id = ? ORDER BY campaign_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var execs []Execution
	for rows.Next() {
		var e Execution
		if err := rows.Scan(&e.UserID, &e.CampaignID, &e.Status, &e.SleepUntil, &e.Error); err != nil {
			return nil, err
		}
		execs = append(execs, e)
	}
	return execs, rows.Err()
}

// TerminateForCampaign terminates every live execution of a campaign,
// then deletes the campaign's execution and history rows. Used by
// campaign delete.
func (s *Store) TerminateForCampaign(ctx context.Context, campaignID, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status = ?, error = ?
		WHERE campaign_id = ? AND status IN (?, ?, ?)`,
		StatusTerminated, reason, campaignID, StatusPending, StatusSleeping, StatusRunning)
	if err != nil {
		return fmt.Errorf("terminate campaign executions: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM execution_history WHERE campaign_id = ?`, campaignID); err != nil {
		return fmt.Errorf("delete campaign history: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM executions WHERE campaign_id = ?`, campaignID); err != nil {
		return fmt.Errorf("delete campaign executions: %w", err)
	}
	return nil
}
