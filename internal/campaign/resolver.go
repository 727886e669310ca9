package campaign

import (
	"context"
	"fmt"

	"github.com/ignite/segflow/internal/db"
	"github.com/ignite/segflow/internal/pkg/logger"
	"github.com/ignite/segflow/internal/segment"
)

// reevaluateBatchSize bounds per-transaction work when a segment change
// fans out to many users.
const reevaluateBatchSize = 100

// ExitReason is the termination message recorded when a dynamic
// campaign evicts a user.
const ExitReason = "User no longer matches campaign criteria"

// ExecutionLifecycle is the slice of the execution store the resolver
// drives: enrollment creates an execution, dynamic eviction terminates
// one. Declared here so campaign does not depend on execution.
type ExecutionLifecycle interface {
	Create(ctx context.Context, userID, campaignID string) error
	Exists(ctx context.Context, userID, campaignID string) (bool, error)
	Terminate(ctx context.Context, userID, campaignID, reason string) error
}

// Resolver recomputes campaign memberships from segment memberships.
type Resolver struct {
	store    *Store
	segments *segment.Store
	execs    ExecutionLifecycle
}

// NewResolver creates a resolver bound to a pool or transaction.
func NewResolver(dbtx db.DBTX, execs ExecutionLifecycle) *Resolver {
	return &Resolver{
		store:    NewStore(dbtx),
		segments: segment.NewStore(dbtx),
		execs:    execs,
	}
}

// Store exposes the underlying campaign store.
func (r *Resolver) Store() *Store { return r.store }

// Matches evaluates the campaign predicate for one user against the
// materialized segment memberships: member of every include segment and
// of no exclude segment.
func (r *Resolver) Matches(ctx context.Context, userID string, c *Campaign) (bool, error) {
	if len(c.Segments) == 0 {
		return false, nil
	}
	memberOf, err := r.segments.SegmentsForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	set := make(map[string]bool, len(memberOf))
	for _, id := range memberOf {
		set[id] = true
	}
	for _, id := range c.Segments {
		if !set[id] {
			return false, nil
		}
	}
	for _, id := range c.ExcludeSegments {
		if set[id] {
			return false, nil
		}
	}
	return true, nil
}

// ReevaluateForUser recomputes every campaign's membership for one
// user. Static campaigns only ever gain members; dynamic campaigns
// track the predicate and terminate the executions of evicted users.
func (r *Resolver) ReevaluateForUser(ctx context.Context, userID string) (*Changes, error) {
	campaigns, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}

	changes := &Changes{}
	for i := range campaigns {
		c := &campaigns[i]
		matches, err := r.Matches(ctx, userID, c)
		if err != nil {
			return nil, fmt.Errorf("campaign %s: %w", c.ID, err)
		}
		member, err := r.store.IsMember(ctx, userID, c.ID)
		if err != nil {
			return nil, err
		}

		switch {
		case matches && !member:
			added, err := r.enroll(ctx, userID, c.ID)
			if err != nil {
				return nil, err
			}
			if added {
				changes.Added = append(changes.Added, MembershipChange{UserID: userID, CampaignID: c.ID})
			}
		case !matches && member && c.Behavior == BehaviorDynamic:
			if err := r.store.RemoveMember(ctx, userID, c.ID); err != nil {
				return nil, err
			}
			if err := r.execs.Terminate(ctx, userID, c.ID, ExitReason); err != nil {
				return nil, err
			}
			changes.Removed = append(changes.Removed, MembershipChange{UserID: userID, CampaignID: c.ID})
		}
	}
	return changes, nil
}

// enroll adds membership and a pending execution. A user whose
// execution row already exists, terminal or not, is not re-enrolled:
// dynamic reentry is out of scope.
func (r *Resolver) enroll(ctx context.Context, userID, campaignID string) (bool, error) {
	exists, err := r.execs.Exists(ctx, userID, campaignID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := r.store.AddMember(ctx, userID, campaignID); err != nil {
		return false, err
	}
	if err := r.execs.Create(ctx, userID, campaignID); err != nil {
		return false, err
	}
	return true, nil
}

// EnrollInitial computes a new campaign's starting membership from
// materialized segment memberships and enrolls each matching user.
func (r *Resolver) EnrollInitial(ctx context.Context, c *Campaign) ([]string, error) {
	users, err := r.store.MatchingUsers(ctx, c.Segments, c.ExcludeSegments)
	if err != nil {
		return nil, err
	}
	var enrolled []string
	for _, userID := range users {
		added, err := r.enroll(ctx, userID, c.ID)
		if err != nil {
			return nil, err
		}
		if added {
			enrolled = append(enrolled, userID)
		}
	}
	return enrolled, nil
}

// ReevaluateForSegmentChange reconciles every campaign referencing the
// segment for each affected user, in batches.
func (r *Resolver) ReevaluateForSegmentChange(ctx context.Context, segmentID string, segChanges *segment.Changes) (*Changes, error) {
	referencing, err := r.store.ListReferencingSegment(ctx, segmentID)
	if err != nil {
		return nil, err
	}
	if len(referencing) == 0 || segChanges.Empty() {
		return &Changes{}, nil
	}

	affected := segChanges.AffectedUsers()
	total := &Changes{}
	for start := 0; start < len(affected); start += reevaluateBatchSize {
		end := start + reevaluateBatchSize
		if end > len(affected) {
			end = len(affected)
		}
		for _, userID := range affected[start:end] {
			changes, err := r.ReevaluateForUser(ctx, userID)
			if err != nil {
				return nil, err
			}
			total.Added = append(total.Added, changes.Added...)
			total.Removed = append(total.Removed, changes.Removed...)
		}
	}

	if len(total.Added) > 0 || len(total.Removed) > 0 {
		logger.Info("campaign memberships reconciled",
			"segment", segmentID,
			"added", len(total.Added),
			"removed", len(total.Removed))
	}
	return total, nil
}
