package transaction

import (
	"context"

	"github.com/ignite/segflow/internal/db"
	"github.com/ignite/segflow/internal/mailer"
	"github.com/ignite/segflow/internal/pkg/logger"
	"github.com/ignite/segflow/internal/sandbox"
	"github.com/ignite/segflow/internal/user"
)

// Dispatcher renders and sends transactional emails for ingested
// events. Rendering happens inside the ingestion transaction (the
// transaction row, provider, and documents are a consistent snapshot);
// the outbound send happens after commit so a slow or failing provider
// cannot poison the transaction.
type Dispatcher struct {
	sandbox *sandbox.Sandbox
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(sb *sandbox.Sandbox) *Dispatcher {
	return &Dispatcher{sandbox: sb}
}

// PreparedEmail is a fully rendered email ready to send post-commit.
type PreparedEmail struct {
	TransactionID string
	From          string
	To            string
	Subject       string
	HTML          string
	sender        mailer.Sender
}

// Prepare looks up the transaction matching the event and renders the
// email with {user, event} context. Returns nil when no transaction
// matches. Render or provider problems are reported so the caller can
// log them; they never abort event ingestion.
func (d *Dispatcher) Prepare(ctx context.Context, dbtx db.DBTX, u *user.User, ev *user.Event) (*PreparedEmail, error) {
	t, err := NewStore(dbtx).FindByEvent(ctx, ev.Name)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, nil
	}

	eventCtx := map[string]interface{}{
		"id":         ev.ID,
		"name":       ev.Name,
		"userId":     ev.UserID,
		"createdAt":  ev.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		"attributes": ev.Attributes,
	}
	// Event payload keys are addressable directly, the way authored
	// subjects reference them (event.id is the payload id when the
	// payload carries one).
	vars := map[string]interface{}{
		"user":  u.Attributes,
		"event": mergeEventVars(eventCtx, ev.Attributes),
	}

	subject, err := d.sandbox.RenderSubject(t.Subject, vars)
	if err != nil {
		return nil, err
	}
	html, err := d.sandbox.RenderTemplate(t.HTML, t.Preamble, vars)
	if err != nil {
		return nil, err
	}

	sender, from, err := mailer.NewStore(dbtx).Sender(ctx)
	if err != nil {
		return nil, err
	}

	return &PreparedEmail{
		TransactionID: t.ID,
		From:          from,
		To:            u.Email(),
		Subject:       subject,
		HTML:          html,
		sender:        sender,
	}, nil
}

// Send delivers a prepared email. Failures are logged and swallowed;
// transactional dispatch never fails the event that triggered it.
func (d *Dispatcher) Send(ctx context.Context, email *PreparedEmail) {
	if email == nil {
		return
	}
	if err := email.sender.Send(ctx, email.From, email.To, email.Subject, email.HTML); err != nil {
		logger.Error("transactional email failed",
			"transaction", email.TransactionID, "to", email.To, "error", err.Error())
		return
	}
	logger.Info("transactional email sent",
		"transaction", email.TransactionID, "to", email.To)
}

// mergeEventVars exposes the event payload's own keys on top of the
// envelope fields.
func mergeEventVars(envelope, payload map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(envelope)+len(payload))
	for k, v := range envelope {
		merged[k] = v
	}
	for k, v := range payload {
		merged[k] = v
	}
	return merged
}
