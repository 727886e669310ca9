package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/segflow/internal/engine"
	"github.com/ignite/segflow/internal/execution"
	"github.com/ignite/segflow/internal/sandbox"
	"github.com/ignite/segflow/internal/service"
)

func setupServer(t *testing.T) (http.Handler, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sb := sandbox.New()
	svc := service.New(db, sb)
	executor := execution.NewExecutor(db, sb, time.Second)
	server := NewServer(svc, executor, "test-key")
	return server.Handler(), mock, func() { db.Close() }
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler, _, cleanup := setupServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/api/segment", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
}

func TestAuthRejectsWrongToken(t *testing.T) {
	handler, _, cleanup := setupServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/api/segment", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthNeedsNoAuth(t *testing.T) {
	handler, _, cleanup := setupServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "database")
}

func TestListSegmentsEnvelope(t *testing.T) {
	handler, mock, cleanup := setupServer(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT id, evaluator FROM segments`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "evaluator"}).
			AddRow("all", "SELECT id FROM users"))

	req := httptest.NewRequest(http.MethodGet, "/api/segment", nil)
	req.Header.Set("Authorization", "Bearer test-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"success":true,"value":[{"id":"all","evaluator":"SELECT id FROM users"}]}`,
		rec.Body.String())
}

func TestInvalidJSONBodyIs400(t *testing.T) {
	handler, _, cleanup := setupServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/api/user/u1", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer test-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestRespondErrStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", engine.Validationf("bad"), http.StatusBadRequest},
		{"constraint", engine.Constraintf("referenced"), http.StatusBadRequest},
		{"unsupported", engine.Unsupported("nope"), http.StatusBadRequest},
		{"not found falls through to 500", engine.NotFound("user", "u1"), http.StatusInternalServerError},
		{"sandbox", &engine.SandboxError{Msg: "boom"}, http.StatusInternalServerError},
		{"transport", &engine.TransportError{Provider: "postmark", Msg: "503"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondErr(rec, tt.err)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
