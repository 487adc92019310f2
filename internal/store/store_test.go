package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	d, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer d.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		d, err := Open(path, 0)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		d.Close()
	}

	d, err := Open(path, 0)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer d.Close()

	tables := []string{"meta", "setup", "session", "run", "run_session", "meta_session", "log", "binary"}
	for _, table := range tables {
		var name string
		err := d.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_AppliesPragmas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	d, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer d.Close()

	if err := d.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
	// synchronous=OFF reports as 0
	if err := d.verifyPragma("synchronous", "0"); err != nil {
		t.Error(err)
	}
	if err := d.verifyPragma("foreign_keys", "1"); err != nil {
		t.Error(err)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db", 0)
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestInsert_ReturnsIncreasingIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	d, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer d.Close()

	var last int64
	for i := 0; i < 5; i++ {
		id, err := d.Insert(`INSERT INTO binary (bytes) VALUES (?)`, []byte{byte(i)})
		if err != nil {
			t.Fatalf("Insert() failed: %v", err)
		}
		if id <= last {
			t.Errorf("id %d not greater than previous %d", id, last)
		}
		last = id
	}
}

func TestCommit_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	d, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := d.Insert(`INSERT INTO binary (bytes) VALUES (x'01')`); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	if err := d.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	d2, err := Open(path, 0)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer d2.Close()

	var count int
	if err := d2.QueryRow(`SELECT COUNT(*) FROM binary`).Scan(&count); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestQuery_SeesBufferedWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	d, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer d.Close()

	// No commit between write and read: the buffered transaction must be
	// visible to its own connection.
	if _, err := d.Insert(`INSERT INTO binary (bytes) VALUES (x'02')`); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	var count int
	if err := d.QueryRow(`SELECT COUNT(*) FROM binary`).Scan(&count); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestAddIndices_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	d, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer d.Close()

	if err := d.AddIndices(); err != nil {
		t.Fatalf("AddIndices() failed: %v", err)
	}
	if err := d.AddIndices(); err != nil {
		t.Errorf("second AddIndices() failed: %v", err)
	}
}

func TestOpenReadOnly_RefusesWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	d, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	d.Close()

	ro, err := OpenReadOnly(path)
	if err != nil {
		t.Fatalf("OpenReadOnly() failed: %v", err)
	}
	defer ro.Close()

	if _, err := ro.Exec(`INSERT INTO binary (bytes) VALUES (x'03')`); err == nil {
		t.Error("expected error writing to read-only store, got nil")
	}

	var count int
	if err := ro.QueryRow(`SELECT COUNT(*) FROM meta`).Scan(&count); err != nil {
		t.Errorf("read-only query failed: %v", err)
	}
}

func TestClose_MultipleCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	d, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	if err := d.Close(); err != nil {
		t.Errorf("first Close() failed: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close() should be a no-op: %v", err)
	}
}
