package service

import (
	"context"
	"database/sql"

	"github.com/ignite/segflow/internal/campaign"
	"github.com/ignite/segflow/internal/engine"
	"github.com/ignite/segflow/internal/execution"
	"github.com/ignite/segflow/internal/mailer"
	"github.com/ignite/segflow/internal/segment"
	"github.com/ignite/segflow/internal/template"
	"github.com/ignite/segflow/internal/transaction"
)

// CreateSegment stores a segment, evaluates it globally, and
// reconciles the campaigns it affects.
func (s *Service) CreateSegment(ctx context.Context, id, evaluator string) error {
	if err := segment.ValidateEvaluator(evaluator); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := segment.NewStore(tx).Create(ctx, &segment.Segment{ID: id, Evaluator: evaluator}); err != nil {
			return err
		}
		return s.reevaluateSegment(ctx, tx, id)
	})
}

// UpdateSegment rewrites a segment's evaluator and reevaluates.
func (s *Service) UpdateSegment(ctx context.Context, id, evaluator string) error {
	if err := segment.ValidateEvaluator(evaluator); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := segment.NewStore(tx).Update(ctx, &segment.Segment{ID: id, Evaluator: evaluator}); err != nil {
			return err
		}
		return s.reevaluateSegment(ctx, tx, id)
	})
}

// DeleteSegment removes a segment unless a campaign references it.
func (s *Service) DeleteSegment(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		store := segment.NewStore(tx)
		referenced, err := store.ReferencedByCampaign(ctx, id)
		if err != nil {
			return err
		}
		if referenced {
			return engine.Constraintf("segment %s is referenced by a campaign", id)
		}
		return store.Delete(ctx, id)
	})
}

// GetSegment returns one segment.
func (s *Service) GetSegment(ctx context.Context, id string) (*segment.Segment, error) {
	return segment.NewStore(s.db).Get(ctx, id)
}

// ListSegments returns all segments.
func (s *Service) ListSegments(ctx context.Context) ([]segment.Segment, error) {
	return segment.NewStore(s.db).List(ctx)
}

// SegmentMembers returns the users currently matching a segment.
func (s *Service) SegmentMembers(ctx context.Context, id string) ([]string, error) {
	store := segment.NewStore(s.db)
	if _, err := store.Get(ctx, id); err != nil {
		return nil, err
	}
	return store.Members(ctx, id)
}

// UserSegments returns the segments a user belongs to.
func (s *Service) UserSegments(ctx context.Context, userID string) ([]string, error) {
	return segment.NewStore(s.db).SegmentsForUser(ctx, userID)
}

// PreviewSegment runs an evaluator read-only.
func (s *Service) PreviewSegment(ctx context.Context, evaluator string) ([]string, error) {
	return segment.NewEvaluator(s.db).Preview(ctx, evaluator)
}

func (s *Service) reevaluateSegment(ctx context.Context, tx *sql.Tx, segmentID string) error {
	changes, err := segment.NewEvaluator(tx).EvaluateGlobal(ctx, segmentID)
	if err != nil {
		return err
	}
	resolver := campaign.NewResolver(tx, execution.NewStore(tx))
	_, err = resolver.ReevaluateForSegmentChange(ctx, segmentID, changes)
	return err
}

// CreateCampaign stores a campaign and enrolls its initial membership.
func (s *Service) CreateCampaign(ctx context.Context, c *campaign.Campaign) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		resolver := campaign.NewResolver(tx, execution.NewStore(tx))
		if err := resolver.Store().Create(ctx, c); err != nil {
			return err
		}
		_, err := resolver.EnrollInitial(ctx, c)
		return err
	})
}

// DeleteCampaign terminates and removes the campaign's executions,
// then deletes the campaign; memberships cascade.
func (s *Service) DeleteCampaign(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := execution.NewStore(tx).TerminateForCampaign(ctx, id, "Campaign deleted"); err != nil {
			return err
		}
		return campaign.NewStore(tx).Delete(ctx, id)
	})
}

// GetCampaign returns one campaign.
func (s *Service) GetCampaign(ctx context.Context, id string) (*campaign.Campaign, error) {
	return campaign.NewStore(s.db).Get(ctx, id)
}

// ListCampaigns returns all campaigns.
func (s *Service) ListCampaigns(ctx context.Context) ([]campaign.Campaign, error) {
	return campaign.NewStore(s.db).List(ctx)
}

// CreateTemplate stores a template.
func (s *Service) CreateTemplate(ctx context.Context, t *template.Template) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return template.NewStore(tx).Create(ctx, t)
	})
}

// UpdateTemplate rewrites a template.
func (s *Service) UpdateTemplate(ctx context.Context, t *template.Template) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return template.NewStore(tx).Update(ctx, t)
	})
}

// DeleteTemplate removes a template.
func (s *Service) DeleteTemplate(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return template.NewStore(tx).Delete(ctx, id)
	})
}

// GetTemplate returns one template.
func (s *Service) GetTemplate(ctx context.Context, id string) (*template.Template, error) {
	return template.NewStore(s.db).Get(ctx, id)
}

// ListTemplates returns all templates.
func (s *Service) ListTemplates(ctx context.Context) ([]template.Template, error) {
	return template.NewStore(s.db).List(ctx)
}

// GetTransaction returns one transaction.
func (s *Service) GetTransaction(ctx context.Context, id string) (*transaction.Transaction, error) {
	return transaction.NewStore(s.db).Get(ctx, id)
}

// ListTransactions returns all transactions.
func (s *Service) ListTransactions(ctx context.Context) ([]transaction.Transaction, error) {
	return transaction.NewStore(s.db).List(ctx)
}

// SetEmailProvider replaces the provider singleton.
func (s *Service) SetEmailProvider(ctx context.Context, p *mailer.Provider) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return mailer.NewStore(tx).Set(ctx, p)
	})
}
