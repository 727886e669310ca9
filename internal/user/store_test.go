package user

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/segflow/internal/engine"
)

func TestValidateAttributes(t *testing.T) {
	tests := []struct {
		name    string
		attrs   map[string]interface{}
		wantErr bool
	}{
		{"valid", map[string]interface{}{"email": "a@x"}, false},
		{"extra fields ok", map[string]interface{}{"email": "a@x", "name": "A", "age": 30}, false},
		{"missing email", map[string]interface{}{"name": "A"}, true},
		{"empty email", map[string]interface{}{"email": ""}, true},
		{"non-string email", map[string]interface{}{"email": 42}, true},
		{"nil attributes", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAttributes(tt.attrs)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetDecodesAttributes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT attributes FROM users WHERE id = ?`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"attributes"}).
			AddRow([]byte(`{"email":"a@x","name":"A","active":true}`)))

	u, err := NewStore(db).Get(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "a@x", u.Email())
	assert.Equal(t, "A", u.Attributes["name"])
	assert.Equal(t, true, u.Attributes["active"])
}

func TestGetMissingUserIsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT attributes FROM users WHERE id = ?`)).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"attributes"}))

	_, err = NewStore(db).Get(context.Background(), "ghost")
	require.Error(t, err)

	var notFound *engine.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestInsertEventReturnsRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO events`)).
		WithArgs("purchase", "u1", at, []byte(`{"amount":42}`)).
		WillReturnResult(sqlmock.NewResult(7, 1))

	ev, err := NewStore(db).InsertEvent(context.Background(), "u1", "purchase",
		map[string]interface{}{"amount": 42}, at)
	require.NoError(t, err)

	assert.EqualValues(t, 7, ev.ID)
	assert.Equal(t, "purchase", ev.Name)
	assert.Equal(t, "u1", ev.UserID)
}
