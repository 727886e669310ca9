// Package transaction owns event-triggered one-shot emails.
package transaction

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/segflow/internal/db"
	"github.com/ignite/segflow/internal/engine"
)

// Transaction binds an email template to an event name.
type Transaction struct {
	ID       string `json:"id"`
	Event    string `json:"event"`
	Subject  string `json:"subject"`
	HTML     string `json:"html"`
	Preamble string `json:"preamble"`
}

// Store provides database operations for transactions.
type Store struct {
	db db.DBTX
}

// NewStore creates a transaction store over a pool or transaction.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{db: dbtx}
}

// Create inserts a transaction.
func (s *Store) Create(ctx context.Context, t *Transaction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (id, event, subject, html, preamble) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Event, t.Subject, t.HTML, t.Preamble)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// Update rewrites a transaction.
func (s *Store) Update(ctx context.Context, t *Transaction) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET event = ?, subject = ?, html = ?, preamble = ? WHERE id = ?`,
		t.Event, t.Subject, t.HTML, t.Preamble, t.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.Get(ctx, t.ID); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a transaction.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.NotFound("transaction", id)
	}
	return nil
}

// Get loads one transaction.
func (s *Store) Get(ctx context.Context, id string) (*Transaction, error) {
	var t Transaction
	err := s.db.QueryRowContext(ctx,
		`SELECT id, event, subject, html, preamble FROM transactions WHERE id = ?`, id).
		Scan(&t.ID, &t.Event, &t.Subject, &t.HTML, &t.Preamble)
	if err == sql.ErrNoRows {
		return nil, engine.NotFound("transaction", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return &t, nil
}

// List returns all transactions ordered by id.
func (s *Store) List(ctx context.Context) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event, subject, html, preamble FROM transactions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.Event, &t.Subject, &t.HTML, &t.Preamble); err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

// FindByEvent returns the transaction dispatched for an event name.
// More than one match takes the first by id.
func (s *Store) FindByEvent(ctx context.Context, event string) (*Transaction, error) {
	var t Transaction
	err := s.db.QueryRowContext(ctx,
		`SELECT id, event, subject, html, preamble FROM transactions
		WHERE event = ? ORDER BY id LIMIT 1`, event).
		Scan(&t.ID, &t.Event, &t.Subject, &t.HTML, &t.Preamble)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	return &t, nil
}
