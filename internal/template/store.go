// Package template owns the templates table: HTML bodies with embedded
// expressions, plus the subject and preamble sources that render
// alongside them.
package template

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/segflow/internal/db"
	"github.com/ignite/segflow/internal/engine"
)

// Template is a reusable email body.
type Template struct {
	ID       string `json:"id"`
	Subject  string `json:"subject"`
	HTML     string `json:"html"`
	Preamble string `json:"preamble"`
}

// Store provides database operations for templates.
type Store struct {
	db db.DBTX
}

// NewStore creates a template store over a pool or transaction.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{db: dbtx}
}

// Create inserts a template.
func (s *Store) Create(ctx context.Context, t *Template) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO templates (id, subject, html, preamble) VALUES (?, ?, ?, ?)`,
		t.ID, t.Subject, t.HTML, t.Preamble)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

// Update rewrites a template.
func (s *Store) Update(ctx context.Context, t *Template) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE templates SET subject = ?, html = ?, preamble = ? WHERE id = ?`,
		t.Subject, t.HTML, t.Preamble, t.ID)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.Get(ctx, t.ID); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a template.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.NotFound("template", id)
	}
	return nil
}

// Get loads one template.
func (s *Store) Get(ctx context.Context, id string) (*Template, error) {
	var t Template
	err := s.db.QueryRowContext(ctx,
		`SELECT id, subject, html, preamble FROM templates WHERE id = ?`, id).
		Scan(&t.ID, &t.Subject, &t.HTML, &t.Preamble)
	if err == sql.ErrNoRows {
		return nil, engine.NotFound("template", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return &t, nil
}

// List returns all templates ordered by id.
func (s *Store) List(ctx context.Context) ([]Template, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subject, html, preamble FROM templates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []Template
	for rows.Next() {
		var t Template
		if err := rows.Scan(&t.ID, &t.Subject, &t.HTML, &t.Preamble); err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}
