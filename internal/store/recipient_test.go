package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ignite/transact-messaging/internal/domain"
)

func TestUpdateConsent_ReturnsPriorState(t *testing.T) {
	s, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT consent_state FROM recipients WHERE e164 = \\$1 FOR UPDATE").
		WithArgs("+15551234567").
		WillReturnRows(sqlmock.NewRows([]string{"consent_state"}).AddRow(string(domain.ConsentOptIn)))
	mock.ExpectExec("UPDATE recipients SET consent_state").
		WithArgs(domain.ConsentStop, "+15551234567").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	prior, err := s.UpdateConsent(context.Background(), "+15551234567", domain.ConsentStop, "inbound_keyword", time.Now())
	if err != nil {
		t.Fatalf("UpdateConsent() error: %v", err)
	}
	if prior != domain.ConsentOptIn {
		t.Errorf("prior = %v, want OPT_IN", prior)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUpdateConsent_SeedsMissingRecipientAsOptInBeforeApplying(t *testing.T) {
	s, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT consent_state FROM recipients WHERE e164 = \\$1 FOR UPDATE").
		WithArgs("+15557654321").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO recipients").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE recipients SET consent_state").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	prior, err := s.UpdateConsent(context.Background(), "+15557654321", domain.ConsentStop, "inbound_keyword", time.Now())
	if err != nil {
		t.Fatalf("UpdateConsent() error: %v", err)
	}
	if prior != domain.ConsentOptIn {
		t.Errorf("prior = %v, want OPT_IN (seeded default)", prior)
	}
}

// TestUpdateConsent_RejectsOptInOverStopUnderRowLock guards the race a
// caller-side check-then-act can't: the UPDATE never runs and the
// transaction rolls back instead of committing, because the FOR UPDATE read
// already rejected the transition.
func TestUpdateConsent_RejectsOptInOverStopUnderRowLock(t *testing.T) {
	s, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT consent_state FROM recipients WHERE e164 = \\$1 FOR UPDATE").
		WithArgs("+15551234567").
		WillReturnRows(sqlmock.NewRows([]string{"consent_state"}).AddRow(string(domain.ConsentStop)))
	mock.ExpectRollback()

	prior, err := s.UpdateConsent(context.Background(), "+15551234567", domain.ConsentOptIn, "inbound_keyword", time.Now())
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if prior != domain.ConsentStop {
		t.Errorf("prior = %v, want STOP", prior)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations (UPDATE must not run): %v", err)
	}
}
