// Package service holds the ingress entry points. Every write method
// wraps its work in one database transaction; segment and campaign
// fan-out runs inside that transaction, and only transactional email
// dispatch escapes it (best-effort after commit). Read methods query
// the pool directly.
package service

import (
	"context"
	"database/sql"

	"github.com/ignite/segflow/internal/pkg/logger"
	"github.com/ignite/segflow/internal/sandbox"
	"github.com/ignite/segflow/internal/transaction"
)

// Service is the transactional wrapper the HTTP layer calls into.
type Service struct {
	db         *sql.DB
	sandbox    *sandbox.Sandbox
	dispatcher *transaction.Dispatcher
}

// New creates the ingress service.
func New(pool *sql.DB, sb *sandbox.Sandbox) *Service {
	return &Service{
		db:         pool,
		sandbox:    sb,
		dispatcher: transaction.NewDispatcher(sb),
	}
}

// DB exposes the pool for health checks.
func (s *Service) DB() *sql.DB { return s.db }

func (s *Service) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// logDispatchProblem records a transactional-email prepare failure.
// Prepare problems never abort event ingestion.
func (s *Service) logDispatchProblem(event, userID string, err error) {
	logger.Warn("transactional email prepare failed",
		"event", event, "user", userID, "error", err.Error())
}
