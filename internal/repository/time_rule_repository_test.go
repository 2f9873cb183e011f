package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"otcbot/internal/apperr"
	"otcbot/internal/models"
)

func sampleTimeRule() *models.TimeRule {
	return &models.TimeRule{
		GroupJID:      "g1@group",
		Name:          "weekend",
		PricingSource: models.PricingSourceBinance,
		SpreadMode:    models.SpreadModeBps,
		Priority:      10,
		IsActive:      true,
	}
}

func TestTimeRuleRepository_Create_RejectsInvalidPricingSource(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	tr := sampleTimeRule()
	tr.PricingSource = "bogus"

	repo := NewTimeRuleRepository(db)
	err = repo.Create(context.Background(), tr)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("Create() error = %v, want validation-kind", err)
	}
}

func TestTimeRuleRepository_Delete_RefusesSystemRule(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT is_system FROM rules`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"is_system"}).AddRow(true))

	repo := NewTimeRuleRepository(db)
	err = repo.Delete(context.Background(), 3)
	if err != apperr.ErrSystemRuleProtect {
		t.Errorf("Delete() error = %v, want apperr.ErrSystemRuleProtect", err)
	}
}

func TestTimeRuleRepository_Update_NotFoundWhenZeroRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	tr := sampleTimeRule()
	tr.ID = 99

	mock.ExpectExec(`UPDATE rules SET`).
		WithArgs(tr.Name, tr.PricingSource, tr.SpreadMode, tr.SellSpread, tr.BuySpread, tr.Priority, sqlmock.AnyArg(), tr.IsActive, tr.ID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewTimeRuleRepository(db)
	err = repo.Update(context.Background(), tr)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("Update() error = %v, want not-found-kind", err)
	}
}
