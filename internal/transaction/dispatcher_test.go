package transaction

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/segflow/internal/sandbox"
	"github.com/ignite/segflow/internal/user"
)

func TestPrepareRendersWithUserAndEventContext(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE event = ? ORDER BY id LIMIT 1`)).
		WithArgs("purchase").
		WillReturnRows(sqlmock.NewRows([]string{"id", "event", "subject", "html", "preamble"}).
			AddRow("purchase-receipt", "purchase",
				"Order <%= event.id %>",
				"<%= user.name %>: $<%= event.amount %>", ""))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT config, from_address FROM email_providers WHERE id = 1`)).
		WillReturnRows(sqlmock.NewRows([]string{"config", "from_address"}).
			AddRow([]byte(`{"name":"postmark","apiKey":"k"}`), "hello@x"))

	u := &user.User{ID: "u1", Attributes: map[string]interface{}{"email": "e@x", "name": "N"}}
	ev := &user.Event{
		ID: 1, Name: "purchase", UserID: "u1",
		CreatedAt:  time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC),
		Attributes: map[string]interface{}{"id": "o1", "amount": 42},
	}

	prepared, err := NewDispatcher(sandbox.New()).Prepare(context.Background(), db, u, ev)
	require.NoError(t, err)
	require.NotNil(t, prepared)

	assert.Equal(t, "e@x", prepared.To)
	assert.Equal(t, "hello@x", prepared.From)
	assert.Equal(t, "Order o1", prepared.Subject)
	assert.Contains(t, prepared.HTML, "N: $42")
}

func TestPrepareNoMatchingTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE event = ? ORDER BY id LIMIT 1`)).
		WithArgs("login").
		WillReturnRows(sqlmock.NewRows([]string{"id", "event", "subject", "html", "preamble"}))

	u := &user.User{ID: "u1", Attributes: map[string]interface{}{"email": "e@x"}}
	ev := &user.Event{ID: 1, Name: "login", UserID: "u1", CreatedAt: time.Now(), Attributes: map[string]interface{}{}}

	prepared, err := NewDispatcher(sandbox.New()).Prepare(context.Background(), db, u, ev)
	require.NoError(t, err)
	assert.Nil(t, prepared)
}
