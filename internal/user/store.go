// Package user owns the users and events tables. The user row's
// attributes document is the single JSON source of truth the segment
// SQL, flows, and templates all read.
package user

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/segflow/internal/db"
	"github.com/ignite/segflow/internal/engine"
)

// User is an application user tracked by the engine.
type User struct {
	ID         string                 `json:"id"`
	Attributes map[string]interface{} `json:"attributes"`
}

// Email returns the required email attribute.
func (u *User) Email() string {
	email, _ := u.Attributes["email"].(string)
	return email
}

// Event is one immutable domain event emitted for a user.
type Event struct {
	ID         int64                  `json:"id"`
	Name       string                 `json:"name"`
	UserID     string                 `json:"userId"`
	CreatedAt  time.Time              `json:"createdAt"`
	Attributes map[string]interface{} `json:"attributes"`
}

// Store provides database operations for users and events.
type Store struct {
	db db.DBTX
}

// NewStore creates a user store over a pool or transaction.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{db: dbtx}
}

// ValidateAttributes enforces the one structural requirement on the
// attribute document: a string email.
func ValidateAttributes(attrs map[string]interface{}) error {
	email, ok := attrs["email"].(string)
	if !ok || email == "" {
		return engine.Validationf("attributes.email is required and must be a string")
	}
	return nil
}

// Create inserts a user.
func (s *Store) Create(ctx context.Context, u *User) error {
	if err := ValidateAttributes(u.Attributes); err != nil {
		return err
	}
	doc, err := json.Marshal(u.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, attributes) VALUES (?, ?)`, u.ID, doc); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Get loads a user and decodes the attribute document.
func (s *Store) Get(ctx context.Context, id string) (*User, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT attributes FROM users WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, engine.NotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u := &User{ID: id}
	if err := json.Unmarshal(doc, &u.Attributes); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	return u, nil
}

// SetAttributes replaces the whole attribute document.
func (s *Store) SetAttributes(ctx context.Context, id string, attrs map[string]interface{}) error {
	if err := ValidateAttributes(attrs); err != nil {
		return err
	}
	doc, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET attributes = ? WHERE id = ?`, doc, id)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// A no-op update also reports zero rows; distinguish by lookup.
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a user; events, memberships, executions, and history
// cascade.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.NotFound("user", id)
	}
	return nil
}

// InsertEvent appends an immutable event row and returns it.
func (s *Store) InsertEvent(ctx context.Context, userID, name string, attrs map[string]interface{}, at time.Time) (*Event, error) {
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	doc, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("marshal event attributes: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (name, user_id, created_at, attributes) VALUES (?, ?, ?, ?)`,
		name, userID, at, doc)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("event id: %w", err)
	}
	return &Event{ID: id, Name: name, UserID: userID, CreatedAt: at, Attributes: attrs}, nil
}

// Events lists a user's events in insertion order.
func (s *Store) Events(ctx context.Context, userID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, user_id, created_at, attributes FROM events WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var doc []byte
		if err := rows.Scan(&ev.ID, &ev.Name, &ev.UserID, &ev.CreatedAt, &doc); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(doc, &ev.Attributes); err != nil {
			return nil, fmt.Errorf("decode event attributes: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
