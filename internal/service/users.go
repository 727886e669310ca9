package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/ignite/segflow/internal/campaign"
	"github.com/ignite/segflow/internal/execution"
	"github.com/ignite/segflow/internal/segment"
	"github.com/ignite/segflow/internal/transaction"
	"github.com/ignite/segflow/internal/user"
)

// CreateUser inserts a user and computes its initial segment and
// campaign memberships.
func (s *Service) CreateUser(ctx context.Context, id string, attrs map[string]interface{}) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		users := user.NewStore(tx)
		if err := users.Create(ctx, &user.User{ID: id, Attributes: attrs}); err != nil {
			return err
		}
		return s.reevaluateUser(ctx, tx, id)
	})
}

// UpdateUser shallow-merges the partial document into the user's
// attributes and reevaluates memberships.
func (s *Service) UpdateUser(ctx context.Context, id string, partial map[string]interface{}) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		users := user.NewStore(tx)
		u, err := users.Get(ctx, id)
		if err != nil {
			return err
		}
		merged := make(map[string]interface{}, len(u.Attributes)+len(partial))
		for k, v := range u.Attributes {
			merged[k] = v
		}
		for k, v := range partial {
			merged[k] = v
		}
		if err := users.SetAttributes(ctx, id, merged); err != nil {
			return err
		}
		return s.reevaluateUser(ctx, tx, id)
	})
}

// GetUser returns a user's attribute document.
func (s *Service) GetUser(ctx context.Context, id string) (*user.User, error) {
	return user.NewStore(s.db).Get(ctx, id)
}

// DeleteUser removes a user; events, memberships, executions, and
// history cascade.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return user.NewStore(tx).Delete(ctx, id)
	})
}

// EmitEvent appends an event, reevaluates segments triggered by the
// event name, reconciles campaign memberships, and dispatches any
// matching transactional email after the transaction commits.
func (s *Service) EmitEvent(ctx context.Context, userID, name string, attrs map[string]interface{}) error {
	var prepared *transaction.PreparedEmail
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		users := user.NewStore(tx)
		u, err := users.Get(ctx, userID)
		if err != nil {
			return err
		}
		ev, err := users.InsertEvent(ctx, userID, name, attrs, time.Now().UTC())
		if err != nil {
			return err
		}
		if err := segment.NewEvaluator(tx).EvaluateForUserOnEvent(ctx, userID, name); err != nil {
			return err
		}
		resolver := campaign.NewResolver(tx, execution.NewStore(tx))
		if _, err := resolver.ReevaluateForUser(ctx, userID); err != nil {
			return err
		}
		// Snapshot and render inside the transaction; send after it.
		prepared, err = s.dispatcher.Prepare(ctx, tx, u, ev)
		if err != nil {
			prepared = nil
			s.logDispatchProblem(name, userID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.dispatcher.Send(ctx, prepared)
	return nil
}

// Events lists a user's events.
func (s *Service) Events(ctx context.Context, userID string) ([]user.Event, error) {
	users := user.NewStore(s.db)
	if _, err := users.Get(ctx, userID); err != nil {
		return nil, err
	}
	return users.Events(ctx, userID)
}

// UserExecutions lists a user's execution rows.
func (s *Service) UserExecutions(ctx context.Context, userID string) ([]execution.Execution, error) {
	if _, err := user.NewStore(s.db).Get(ctx, userID); err != nil {
		return nil, err
	}
	return execution.NewStore(s.db).ListForUser(ctx, userID)
}

// reevaluateUser refreshes segment memberships for one user, then the
// campaign memberships that depend on them.
func (s *Service) reevaluateUser(ctx context.Context, tx *sql.Tx, userID string) error {
	if err := segment.NewEvaluator(tx).EvaluateForUser(ctx, userID); err != nil {
		return err
	}
	resolver := campaign.NewResolver(tx, execution.NewStore(tx))
	_, err := resolver.ReevaluateForUser(ctx, userID)
	return err
}
