//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"raidbot/pkg/logx"
)

func TestSQLiteJournalAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	if err := j.Append(ctx, Entry{RunID: "r", Channel: "c", Attempt: 1, Outcome: OutcomeSent}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := j.Append(ctx, Entry{RunID: "r", Channel: "c", Outcome: OutcomeConnectFailed, Error: "nope"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	_ = j.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM journal WHERE run_id = 'r'`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("rows = %d, want 2", n)
	}
}
