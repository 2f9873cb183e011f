package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"otcbot/internal/models"
)

func TestIgnoredSenderRepository_Create(t *testing.T) {
	tests := []struct {
		name        string
		entry       *models.IgnoredSender
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError bool
	}{
		{
			name:  "success",
			entry: &models.IgnoredSender{GroupJID: "g1@group", SenderJID: "s1@user", Reason: "spammer"},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO ignored_senders`).
					WithArgs("g1@group", "s1@user", "spammer", sqlmock.AnyArg()).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
			},
		},
		{
			name:  "duplicate",
			entry: &models.IgnoredSender{GroupJID: "g1@group", SenderJID: "s2@user", Reason: "dup"},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO ignored_senders`).
					WithArgs("g1@group", "s2@user", "dup", sqlmock.AnyArg()).
					WillReturnError(errors.New("duplicate key value violates unique constraint"))
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("sqlmock.New() error = %v", err)
			}
			defer db.Close()
			tt.mockSetup(mock)

			repo := NewIgnoredSenderRepository(db)
			err = repo.Create(context.Background(), tt.entry)
			if (err != nil) != tt.expectError {
				t.Errorf("Create() error = %v, expectError %v", err, tt.expectError)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet expectations: %v", err)
			}
		})
	}
}

func TestIgnoredSenderRepository_Exists(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("g1@group", "s1@user").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	repo := NewIgnoredSenderRepository(db)
	exists, err := repo.Exists(context.Background(), "g1@group", "s1@user")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !exists {
		t.Error("Exists() = false, want true")
	}
}

func TestIgnoredSenderRepository_Delete_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`DELETE FROM ignored_senders`).
		WithArgs("g1@group", "s1@user").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewIgnoredSenderRepository(db)
	if err := repo.Delete(context.Background(), "g1@group", "s1@user"); err == nil {
		t.Error("Delete() error = nil, want error for a sender not on the list")
	}
}
