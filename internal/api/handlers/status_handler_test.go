package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"otcbot/internal/repository"
)

func TestStatusHandler_Get_ReportsUnknownConnectionWithoutTransport(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT`).WillReturnRows(sqlmock.NewRows(
		[]string{"id", "jid", "name", "is_control_group", "mode", "first_seen_at", "last_activity_at", "message_count"},
	))

	deps := &Dependencies{
		Groups:    repository.NewGroupRepository(db),
		StartedAt: time.Now().Add(-time.Hour),
	}
	h := NewStatusHandler(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
