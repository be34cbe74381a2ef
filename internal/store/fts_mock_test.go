package store

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

// newMockStore wraps a sqlmock-driven *sql.DB directly, bypassing Open's
// migration step, since the point here is to exercise SearchFTS/
// IndexMessage's error-wrapping around a driver failure rather than real
// FTS5 behavior (sqlmock has no SQL engine behind it).
func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{driver: "sqlite", db: db}, mock
}

func TestSearchFTS_DriverErrorWrapped(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT message_id, role, content").
		WithArgs("widgets*", 50).
		WillReturnError(errors.New("disk I/O error"))

	_, err := s.SearchFTS(context.Background(), "widgets*", 0)
	if err == nil {
		t.Fatal("SearchFTS() error = nil, want wrapped driver error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestIndexMessage_DeleteErrorWrapped(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM message_fts").
		WithArgs("m1").
		WillReturnError(errors.New("database is locked"))

	err := s.IndexMessage(context.Background(), "m1", "user", "hello")
	if err == nil {
		t.Fatal("IndexMessage() error = nil, want wrapped driver error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
