package sqlitedb_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"tagflow/internal/sqlitedb"
)

const schema = `CREATE TABLE schema_version (version INTEGER NOT NULL);
CREATE TABLE things (id INTEGER PRIMARY KEY, name TEXT UNIQUE);`

func TestEnsureSchemaCreatesAndReportsVersion(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "db.sqlite")
	db, err := sqlitedb.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	version, err := sqlitedb.EnsureSchema(ctx, db, schema, 3)
	if err != nil || version != 3 {
		t.Fatalf("EnsureSchema = %d, %v", version, err)
	}
	version, err = sqlitedb.EnsureSchema(ctx, db, schema, 4)
	if err != nil || version != 3 {
		t.Fatalf("expected recorded version 3 on reopen, got %d, %v", version, err)
	}
}

func TestUniqueViolationDetection(t *testing.T) {
	ctx := context.Background()
	db, err := sqlitedb.Open(filepath.Join(t.TempDir(), "db.sqlite"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()
	if _, err := sqlitedb.EnsureSchema(ctx, db, schema, 1); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}

	if _, err := db.Exec(`INSERT INTO things (name) VALUES ('a')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, err = db.Exec(`INSERT INTO things (name) VALUES ('a')`)
	if !sqlitedb.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
	if sqlitedb.IsBusy(err) {
		t.Fatal("unique violation must not be treated as busy")
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db, err := sqlitedb.Open(filepath.Join(t.TempDir(), "db.sqlite"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()
	if _, err := sqlitedb.EnsureSchema(ctx, db, schema, 1); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}

	sentinel := errors.New("abort")
	err = sqlitedb.WithTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO things (name) VALUES ('b')`); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(1) FROM things`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback, found %d rows", count)
	}
}

func TestRetryOnBusyStopsOnOtherErrors(t *testing.T) {
	calls := 0
	err := sqlitedb.RetryOnBusy(context.Background(), func() error {
		calls++
		return errors.New("database is locked")
	})
	if err == nil || calls != 5 {
		t.Fatalf("expected five busy attempts, got %d (%v)", calls, err)
	}

	calls = 0
	_ = sqlitedb.RetryOnBusy(context.Background(), func() error {
		calls++
		return errors.New("syntax error")
	})
	if calls != 1 {
		t.Fatalf("expected no retry for non-busy error, got %d", calls)
	}
}
