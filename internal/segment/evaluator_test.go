package segment

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEvaluator(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		wantErr bool
	}{
		{"plain select", `SELECT id FROM users`, false},
		{"trailing semicolon", `SELECT id FROM users;`, false},
		{"empty", ``, true},
		{"whitespace only", `   `, true},
		{"two statements", `SELECT id FROM users; DROP TABLE users`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEvaluator(tt.sql)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEvaluateGlobalDiffsMemberships(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, evaluator FROM segments WHERE id = ?`)).
		WithArgs("all").
		WillReturnRows(sqlmock.NewRows([]string{"id", "evaluator"}).
			AddRow("all", "SELECT id FROM users"))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM users`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u1").AddRow("u2"))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id FROM segment_memberships WHERE segment_id = ?`)).
		WithArgs("all").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u2").AddRow("u3"))

	mock.ExpectExec(regexp.QuoteMeta(`INSERT IGNORE INTO segment_memberships`)).
		WithArgs("u1", "all").
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM segment_memberships WHERE user_id = ? AND segment_id = ?`)).
		WithArgs("u3", "all").
		WillReturnResult(sqlmock.NewResult(0, 1))

	changes, err := NewEvaluator(db).EvaluateGlobal(context.Background(), "all")
	require.NoError(t, err)

	assert.Equal(t, []string{"u1"}, changes.Added)
	assert.Equal(t, []string{"u3"}, changes.Removed)
	assert.Equal(t, 2, changes.Total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluateGlobalRequiresIDColumn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, evaluator FROM segments WHERE id = ?`)).
		WithArgs("bad").
		WillReturnRows(sqlmock.NewRows([]string{"id", "evaluator"}).
			AddRow("bad", "SELECT email FROM users"))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT email FROM users`)).
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("a@x"))

	_, err = NewEvaluator(db).EvaluateGlobal(context.Background(), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id column")
}

func TestEvaluateForUserOnEventOnlyTouchesTriggeredSegments(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`JOIN segment_event_triggers`)).
		WithArgs("purchase").
		WillReturnRows(sqlmock.NewRows([]string{"id", "evaluator"}).
			AddRow("buyers", "SELECT user_id AS id FROM events WHERE events.name = 'purchase'"))

	mock.ExpectQuery(regexp.QuoteMeta(`WITH m AS (SELECT user_id AS id FROM events WHERE events.name = 'purchase') SELECT id FROM m WHERE id = ?`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u1"))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM segment_memberships`)).
		WithArgs("u1", "buyers").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	mock.ExpectExec(regexp.QuoteMeta(`INSERT IGNORE INTO segment_memberships`)).
		WithArgs("u1", "buyers").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewEvaluator(db).EvaluateForUserOnEvent(context.Background(), "u1", "purchase")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
