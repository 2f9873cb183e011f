package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"otcbot/internal/apperr"
	"otcbot/internal/models"
)

func sampleTrigger() *models.Trigger {
	return &models.Trigger{
		GroupJID:    "g1@group",
		Phrase:      "cotação",
		PatternType: models.PatternContains,
		ActionType:  models.ActionQuote,
		Priority:    50,
		IsActive:    true,
		Scope:       models.ScopeGroup,
	}
}

func TestTriggerRepository_Create_DuplicateIsConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO triggers`).
		WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "triggers_group_phrase_idx"`))

	repo := NewTriggerRepository(db)
	err = repo.Create(context.Background(), sampleTrigger())
	if !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("Create() error = %v, want conflict-kind", err)
	}
}

func TestTriggerRepository_Create_RejectsInvalidTrigger(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	tr := sampleTrigger()
	tr.Phrase = ""

	repo := NewTriggerRepository(db)
	err = repo.Create(context.Background(), tr)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("Create() error = %v, want validation-kind for an empty phrase", err)
	}
}

func TestTriggerRepository_Delete_RefusesSystemTrigger(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT is_system FROM triggers`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"is_system"}).AddRow(true))

	repo := NewTriggerRepository(db)
	err = repo.Delete(context.Background(), 7)
	if err != apperr.ErrSystemRuleProtect {
		t.Errorf("Delete() error = %v, want apperr.ErrSystemRuleProtect", err)
	}
}

func TestTriggerRepository_Delete_RemovesNonSystemTrigger(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT is_system FROM triggers`).
		WithArgs(8).
		WillReturnRows(sqlmock.NewRows([]string{"is_system"}).AddRow(false))
	mock.ExpectExec(`DELETE FROM triggers`).
		WithArgs(8).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewTriggerRepository(db)
	if err := repo.Delete(context.Background(), 8); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}
