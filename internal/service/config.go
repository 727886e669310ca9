package service

import (
	"context"
	"database/sql"

	"github.com/ignite/segflow/internal/reconcile"
)

// PushConfig reconciles a whole pushed configuration in one
// transaction. A push with no changes writes no ledger row.
func (s *Service) PushConfig(ctx context.Context, doc *reconcile.Document) (*reconcile.Result, error) {
	var result *reconcile.Result
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		result, err = reconcile.NewReconciler(tx).Push(ctx, doc)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CurrentConfig returns the latest accepted configuration, nil when
// none has been pushed.
func (s *Service) CurrentConfig(ctx context.Context) (*reconcile.Document, error) {
	return reconcile.NewReconciler(s.db).Current(ctx)
}
