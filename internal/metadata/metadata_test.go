package metadata

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"frauddwh/internal/warehouse"
)

func openStore(t *testing.T) *warehouse.Store {
	t.Helper()
	s, err := warehouse.Open(context.Background(), filepath.Join(t.TempDir(), "dwh.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTouchStampsExistingTables(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	db := s.DB()
	if _, err := db.ExecContext(ctx, `INSERT INTO META_TABLE (tbl_name, last_update) VALUES ('STG_CARDS', NULL), ('NO_SUCH_TABLE', NULL)`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := s.ResetStaging(ctx); err != nil {
		t.Fatalf("reset staging: %v", err)
	}
	at := time.Date(2021, 3, 1, 8, 30, 0, 0, time.UTC)
	n, err := Touch(ctx, db, at)
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	if want := int64(len(TrackedTables) + 1); n != want {
		t.Fatalf("touched %d, want %d", n, want)
	}
	for _, table := range []string{"REP_FRAUD", "STG_CARDS"} {
		got, ok, err := LastUpdate(ctx, db, table)
		if err != nil || !ok || !got.Equal(at) {
			t.Fatalf("last update %s = %v %v %v", table, got, ok, err)
		}
	}
	if _, ok, err := LastUpdate(ctx, db, "NO_SUCH_TABLE"); err != nil || ok {
		t.Fatalf("missing table should stay unstamped: ok=%v err=%v", ok, err)
	}

	later := at.Add(24 * time.Hour)
	if _, err := Touch(ctx, db, later); err != nil {
		t.Fatalf("touch again: %v", err)
	}
	if got, _, _ := LastUpdate(ctx, db, "DWH_FACT_TRANSACTIONS"); !got.Equal(later) {
		t.Fatalf("stamp not advanced: %v", got)
	}
}

func TestRunJournal(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	db := s.DB()
	start := time.Date(2021, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := StartRun(ctx, db, "ok-run", "01032021", start); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := FinishRun(ctx, db, "ok-run", start.Add(time.Minute), nil); err != nil {
		t.Fatalf("finish: %v", err)
	}
	run, err := GetRun(ctx, db, "ok-run")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if run.Status != StatusSucceeded || run.Error.Valid || !run.FinishedAt.Valid || !run.StartedAt.Equal(start) {
		t.Fatalf("unexpected run %+v", run)
	}

	if err := StartRun(ctx, db, "bad-run", "02032021", start); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := FinishRun(ctx, db, "bad-run", start, errors.New("stage: input not found")); err != nil {
		t.Fatalf("finish failed: %v", err)
	}
	run, err = GetRun(ctx, db, "bad-run")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if run.Status != StatusFailed || run.Error.String != "stage: input not found" {
		t.Fatalf("unexpected failed run %+v", run)
	}

	if err := FinishRun(ctx, db, "unknown", start, nil); err == nil {
		t.Fatalf("expected error for unknown run")
	}
	if err := StartRun(ctx, db, "ok-run", "01032021", start); err == nil {
		t.Fatalf("expected duplicate run id to fail")
	}
}
