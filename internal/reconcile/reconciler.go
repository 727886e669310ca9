package reconcile

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/segflow/internal/campaign"
	"github.com/ignite/segflow/internal/db"
	"github.com/ignite/segflow/internal/engine"
	"github.com/ignite/segflow/internal/execution"
	"github.com/ignite/segflow/internal/mailer"
	"github.com/ignite/segflow/internal/pkg/logger"
	"github.com/ignite/segflow/internal/segment"
	"github.com/ignite/segflow/internal/template"
	"github.com/ignite/segflow/internal/transaction"
)

// Result reports the outcome of one push.
type Result struct {
	NoChanges bool  `json:"noChanges"`
	Ops       int   `json:"ops"`
	ConfigID  int64 `json:"configId,omitempty"`
}

// Reconciler applies pushed configurations inside the caller's
// transaction.
type Reconciler struct {
	db db.DBTX
}

// NewReconciler creates a reconciler bound to a transaction.
func NewReconciler(dbtx db.DBTX) *Reconciler {
	return &Reconciler{db: dbtx}
}

// Push validates the document, diffs it against the last accepted
// configuration, applies the operations in order, and appends the
// ledger row. An empty diff writes nothing.
func (r *Reconciler) Push(ctx context.Context, doc *Document) (*Result, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	current, err := r.Current(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		current = &Document{}
	}

	plan := Diff(current, doc)
	if plan.Ops() == 0 {
		return &Result{NoChanges: true}, nil
	}

	if err := r.apply(ctx, plan); err != nil {
		return nil, err
	}

	id, err := r.append(ctx, doc)
	if err != nil {
		return nil, err
	}

	logger.Info("configuration accepted", "config_id", id, "ops", plan.Ops())
	return &Result{Ops: plan.Ops(), ConfigID: id}, nil
}

// apply runs the plan in the fixed topological order:
// templates → transactions → segments → campaigns → emailProvider.
func (r *Reconciler) apply(ctx context.Context, plan *Plan) error {
	templates := template.NewStore(r.db)
	transactions := transaction.NewStore(r.db)
	segments := segment.NewStore(r.db)
	evaluator := segment.NewEvaluator(r.db)
	execs := execution.NewStore(r.db)
	resolver := campaign.NewResolver(r.db, execs)
	campaigns := resolver.Store()

	for _, id := range plan.DeleteTemplates {
		if err := templates.Delete(ctx, id); err != nil {
			return err
		}
	}
	for _, t := range plan.AddTemplates {
		if err := templates.Create(ctx, &t); err != nil {
			return err
		}
	}
	for _, t := range plan.UpdateTemplates {
		if err := templates.Update(ctx, &t); err != nil {
			return err
		}
	}

	for _, id := range plan.DeleteTransactions {
		if err := transactions.Delete(ctx, id); err != nil {
			return err
		}
	}
	for _, t := range plan.AddTransactions {
		if err := transactions.Create(ctx, &t); err != nil {
			return err
		}
	}
	for _, t := range plan.UpdateTransactions {
		if err := transactions.Update(ctx, &t); err != nil {
			return err
		}
	}

	for _, id := range plan.DeleteSegments {
		if err := segments.Delete(ctx, id); err != nil {
			return err
		}
	}
	for _, s := range plan.AddSegments {
		if err := segments.Create(ctx, &s); err != nil {
			return err
		}
		if err := r.reevaluateSegment(ctx, evaluator, resolver, s.ID); err != nil {
			return err
		}
	}
	for _, s := range plan.UpdateSegments {
		if err := segments.Update(ctx, &s); err != nil {
			return err
		}
		if err := r.reevaluateSegment(ctx, evaluator, resolver, s.ID); err != nil {
			return err
		}
	}

	for _, id := range plan.DeleteCampaigns {
		if err := execs.TerminateForCampaign(ctx, id, "Campaign deleted"); err != nil {
			return err
		}
		if err := campaigns.Delete(ctx, id); err != nil {
			return err
		}
	}
	for _, c := range plan.AddCampaigns {
		if err := campaigns.Create(ctx, &c); err != nil {
			return err
		}
		if _, err := resolver.EnrollInitial(ctx, &c); err != nil {
			return err
		}
	}
	if len(plan.UpdateCampaigns) > 0 {
		return engine.Unsupported(fmt.Sprintf(
			"campaign %s changed: campaign updates are not supported, delete and re-add it",
			plan.UpdateCampaigns[0].ID))
	}

	if plan.SetProvider != nil {
		if err := mailer.NewStore(r.db).Set(ctx, plan.SetProvider); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) reevaluateSegment(ctx context.Context, evaluator *segment.Evaluator, resolver *campaign.Resolver, segmentID string) error {
	changes, err := evaluator.EvaluateGlobal(ctx, segmentID)
	if err != nil {
		return err
	}
	_, err = resolver.ReevaluateForSegmentChange(ctx, segmentID, changes)
	return err
}

// Current returns the latest accepted configuration, nil when the
// ledger is empty.
func (r *Reconciler) Current(ctx context.Context) (*Document, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT config_json FROM configs ORDER BY created_at DESC, id DESC LIMIT 1`).
		Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load current config: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode current config: %w", err)
	}
	return &doc, nil
}

// append writes the accepted configuration to the immutable ledger.
func (r *Reconciler) append(ctx context.Context, doc *Document) (int64, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("marshal config: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO configs (config_json, created_at) VALUES (?, ?)`,
		raw, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("append config: %w", err)
	}
	return res.LastInsertId()
}
