package lock

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGAdvisoryLock_AcquireSucceeds(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))

	l := NewPGAdvisoryLock(db, "campaign:c1")
	ok, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected Acquire to succeed")
	}
}

func TestPGAdvisoryLock_AcquireFailsWhenHeld(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	l := NewPGAdvisoryLock(db, "campaign:c1")
	ok, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected Acquire to fail when another session holds the lock")
	}
}

func TestPGAdvisoryLock_SameKeyProducesSameLockID(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	defer db.Close()

	a := NewPGAdvisoryLock(db, "campaign:c1")
	b := NewPGAdvisoryLock(db, "campaign:c1")
	c := NewPGAdvisoryLock(db, "campaign:c2")

	if a.lockID != b.lockID {
		t.Error("the same key should hash to the same lock id")
	}
	if a.lockID == c.lockID {
		t.Error("different keys should hash to different lock ids")
	}
}

func TestPGAdvisoryLock_Release(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec("SELECT pg_advisory_unlock").
		WillReturnResult(sqlmock.NewResult(0, 1))

	l := NewPGAdvisoryLock(db, "campaign:c1")
	ok, err := l.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("Acquire() = %v, %v, want true, nil", ok, err)
	}
	if err := l.Release(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestPGAdvisoryLock_ReleaseWithoutAcquireIsNoOp guards a lock instance
// whose Acquire never succeeded (or was never called): Release must not
// panic on the nil conn or issue pg_advisory_unlock for a session that
// never held the lock.
func TestPGAdvisoryLock_ReleaseWithoutAcquireIsNoOp(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	defer db.Close()

	l := NewPGAdvisoryLock(db, "campaign:c1")
	if err := l.Release(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected driver calls on a no-op Release: %v", err)
	}
}

// TestPGAdvisoryLock_AcquireFailureReleasesConnection guards the pool leak
// this fix could otherwise introduce: a failed Acquire must return its
// checked-out connection to the pool rather than holding it forever.
func TestPGAdvisoryLock_AcquireFailureReleasesConnection(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	l := NewPGAdvisoryLock(db, "campaign:c1")
	ok, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected Acquire to fail when another session holds the lock")
	}
	if l.conn != nil {
		t.Error("expected the checked-out connection to be released back to the pool")
	}
}
