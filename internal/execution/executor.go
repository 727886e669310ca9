package execution

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/segflow/internal/campaign"
	"github.com/ignite/segflow/internal/engine"
	"github.com/ignite/segflow/internal/mailer"
	"github.com/ignite/segflow/internal/pkg/logger"
	"github.com/ignite/segflow/internal/sandbox"
	"github.com/ignite/segflow/internal/template"
	"github.com/ignite/segflow/internal/user"
)

// Executor is the periodic tick worker. Each tick runs one database
// transaction: claim every due execution with a row lock, advance each
// one yield, persist the new state. A tick still running when the next
// timer fires is harmless: claimed rows are already marked running and
// the overlapping tick skips them.
type Executor struct {
	db       *sql.DB
	sandbox  *sandbox.Sandbox
	interval time.Duration

	// now is the clock; swapped in tests.
	now func() time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool

	lastRunAt   atomic.Int64
	totalSteps  atomic.Int64
	totalErrors atomic.Int64
}

// NewExecutor creates a flow executor.
func NewExecutor(pool *sql.DB, sb *sandbox.Sandbox, interval time.Duration) *Executor {
	return &Executor{
		db:       pool,
		sandbox:  sb,
		interval: interval,
		now:      time.Now,
	}
}

// Start begins the tick loop.
func (e *Executor) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.mu.Unlock()

	log.Printf("[FlowExecutor] starting, tick interval %s", e.interval)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-e.ctx.Done():
				return
			case <-ticker.C:
				if err := e.Tick(e.ctx); err != nil && e.ctx.Err() == nil {
					logger.Error("tick failed", "error", err.Error())
				}
			}
		}
	}()
}

// Stop cancels the loop and waits for the in-flight tick.
func (e *Executor) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.cancel()
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Printf("[FlowExecutor] stopped, steps=%d errors=%d",
			e.totalSteps.Load(), e.totalErrors.Load())
	case <-time.After(30 * time.Second):
		log.Printf("[FlowExecutor] shutdown timeout, abandoning in-flight tick")
	}
}

// LastRunAt returns the start time of the most recent tick.
func (e *Executor) LastRunAt() time.Time {
	ns := e.lastRunAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Stats returns cumulative advanced-step and per-row error counts.
func (e *Executor) Stats() (steps, errors int64) {
	return e.totalSteps.Load(), e.totalErrors.Load()
}

// Tick claims due executions and advances each one step. A failure in
// one row marks that execution failed and the rest proceed; the whole
// tick commits as one transaction.
func (e *Executor) Tick(ctx context.Context) error {
	now := e.now().UTC()
	e.lastRunAt.Store(now.UnixNano())

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	store := NewStore(tx)
	claimed, err := store.ClaimDue(ctx, now)
	if err != nil {
		return err
	}

	for i := range claimed {
		cl := &claimed[i]
		if err := e.advance(ctx, tx, cl, now); err != nil {
			e.totalErrors.Add(1)
			logger.Warn("flow step failed",
				"user", cl.UserID, "campaign", cl.CampaignID, "error", err.Error())
			if ferr := store.Fail(ctx, cl.UserID, cl.CampaignID, err.Error()); ferr != nil {
				return ferr
			}
			continue
		}
		e.totalSteps.Add(1)
	}

	return tx.Commit()
}

// advance moves one claimed execution forward a single yield.
func (e *Executor) advance(ctx context.Context, tx *sql.Tx, claimed *Execution, now time.Time) error {
	store := NewStore(tx)
	users := user.NewStore(tx)
	resolver := campaign.NewResolver(tx, store)

	camp, err := resolver.Store().Get(ctx, claimed.CampaignID)
	if err != nil {
		return err
	}
	u, err := users.Get(ctx, claimed.UserID)
	if err != nil {
		return err
	}

	// Rebuild the attribute states the flow has observed so far; the
	// current document is what this step will see.
	var attrStates []map[string]interface{}
	stepIndex := 0
	if claimed.Status == StatusSleeping {
		history, err := store.History(ctx, u.ID, camp.ID)
		if err != nil {
			return err
		}
		for _, h := range history {
			attrStates = append(attrStates, h.Attributes)
		}
		stepIndex = len(history)
	}
	// The runtime writes flow mutations through to the map it is given;
	// hand it a copy so u.Attributes stays the pre-step document.
	doc, err := json.Marshal(u.Attributes)
	if err != nil {
		return err
	}
	var current map[string]interface{}
	if err := json.Unmarshal(doc, &current); err != nil {
		return err
	}
	attrStates = append(attrStates, current)

	if camp.Behavior == campaign.BehaviorDynamic && stepIndex > 0 {
		matches, err := resolver.Matches(ctx, u.ID, camp)
		if err != nil {
			return err
		}
		if !matches {
			return store.Terminate(ctx, u.ID, camp.ID, campaign.ExitReason)
		}
	}

	if err := store.AppendHistory(ctx, u.ID, camp.ID, stepIndex, u.Attributes); err != nil {
		return err
	}

	result, err := e.sandbox.StepFlow(camp.Flow, attrStates, stepIndex)
	if err != nil {
		return err
	}

	// Attribute writeback. Reevaluation may terminate this very
	// execution on a dynamic campaign; the state writes below
	// overwrite or no-op on the terminated row, which the second
	// dynamic-exit check resolves.
	if result.Attributes != nil && !attrsEqual(result.Attributes, u.Attributes) {
		if err := users.SetAttributes(ctx, u.ID, result.Attributes); err != nil {
			return err
		}
		u.Attributes = result.Attributes
		if _, err := resolver.ReevaluateForUser(ctx, u.ID); err != nil {
			return err
		}
		logger.Debug("flow changed user attributes", "user", u.ID, "campaign", camp.ID)
	}

	if result.Done {
		return store.Complete(ctx, u.ID, camp.ID)
	}
	if result.Value == nil {
		return store.Fail(ctx, u.ID, camp.ID, "Generator yielded undefined")
	}

	if camp.Behavior == campaign.BehaviorDynamic {
		matches, err := resolver.Matches(ctx, u.ID, camp)
		if err != nil {
			return err
		}
		if !matches {
			return store.Terminate(ctx, u.ID, camp.ID, campaign.ExitReason)
		}
	}

	cmd, err := parseCommand(result.Value)
	if err != nil {
		return err
	}

	switch cmd.Type {
	case CommandWait:
		d, err := waitDuration(cmd.Duration)
		if err != nil {
			return err
		}
		return store.SleepUntil(ctx, u.ID, camp.ID, now.Add(d))

	case CommandSendEmail:
		if err := e.sendTemplate(ctx, tx, cmd.TemplateID, u); err != nil {
			return err
		}
		// Due again immediately: the next tick advances to the next
		// yield.
		return store.SleepUntil(ctx, u.ID, camp.ID, now)

	case CommandSendSMS:
		return engine.Unsupported("SMS sending is not implemented")
	}
	return nil
}

func (e *Executor) sendTemplate(ctx context.Context, tx *sql.Tx, templateID string, u *user.User) error {
	tpl, err := template.NewStore(tx).Get(ctx, templateID)
	if err != nil {
		return err
	}
	vars := map[string]interface{}{"user": u.Attributes}
	subject, err := e.sandbox.RenderSubject(tpl.Subject, vars)
	if err != nil {
		return err
	}
	html, err := e.sandbox.RenderTemplate(tpl.HTML, tpl.Preamble, vars)
	if err != nil {
		return err
	}
	sender, from, err := mailer.NewStore(tx).Sender(ctx)
	if err != nil {
		return err
	}
	return sender.Send(ctx, from, u.Email(), subject, html)
}

// attrsEqual compares attribute documents by canonical JSON so numeric
// representation (the runtime exports integral numbers as int64, the
// database decodes them as float64) never forces a writeback.
func attrsEqual(a, b map[string]interface{}) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}
