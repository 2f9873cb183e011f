package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"

	"otcbot/internal/repository"
	"otcbot/internal/trigger"
)

func TestTriggerHandler_List_ReturnsGroupTriggers(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	cols := []string{"id", "group_jid", "trigger_phrase", "pattern_type", "action_type",
		"action_params", "priority", "is_active", "scope", "is_system", "created_at"}
	mock.ExpectQuery(`SELECT`).WithArgs("g1@group").WillReturnRows(
		sqlmock.NewRows(cols).AddRow(1, "g1@group", "cotacao", "contains", "text_response", []byte(`{}`), 10, true, "group", false, time.Now()),
	)

	repo := repository.NewTriggerRepository(db)
	deps := &Dependencies{
		Triggers: repo,
		Matcher:  trigger.New(repo, trigger.Config{}, nil),
	}
	h := NewTriggerHandler(deps)

	req := withJIDVar(httptest.NewRequest(http.MethodGet, "/api/groups/g1@group/triggers", nil), "g1@group")
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTriggerHandler_Create_RejectsInvalidRegex(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := repository.NewTriggerRepository(db)
	deps := &Dependencies{Triggers: repo, Matcher: trigger.New(repo, trigger.Config{}, nil)}
	h := NewTriggerHandler(deps)

	body := bytes.NewBufferString(`{"trigger_phrase":"(unclosed","pattern_type":"regex","action_type":"text_response","priority":1,"is_active":true,"scope":"group"}`)
	req := withJIDVar(httptest.NewRequest(http.MethodPost, "/api/groups/g1@group/triggers", body), "g1@group")
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", rec.Code, rec.Body.String())
	}
}

func TestTriggerHandler_Delete_InvalidID(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := repository.NewTriggerRepository(db)
	deps := &Dependencies{Triggers: repo, Matcher: trigger.New(repo, trigger.Config{}, nil)}
	h := NewTriggerHandler(deps)

	req := mux.SetURLVars(
		httptest.NewRequest(http.MethodDelete, "/api/groups/g1@group/triggers/abc", nil),
		map[string]string{"jid": "g1@group", "id": "abc"},
	)
	rec := httptest.NewRecorder()
	h.Delete(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", rec.Code, rec.Body.String())
	}
}
