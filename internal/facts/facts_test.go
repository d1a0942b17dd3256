package facts

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"frauddwh/internal/warehouse"
)

func openStore(t *testing.T) *warehouse.Store {
	t.Helper()
	ctx := context.Background()
	s, err := warehouse.Open(ctx, filepath.Join(t.TempDir(), "dwh.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.ResetStaging(ctx); err != nil {
		t.Fatalf("reset staging: %v", err)
	}
	return s
}

func stageTransaction(t *testing.T, s *warehouse.Store, id, card string, amt float64) {
	t.Helper()
	_, err := s.DB().ExecContext(context.Background(),
		`INSERT INTO STG_TRANSACTIONS VALUES (?, '2021-03-01 10:00:00', ?, 'PAYMENT', ?, 'SUCCESS', 'T1')`, id, card, amt)
	if err != nil {
		t.Fatalf("stage transaction: %v", err)
	}
}

func TestLoadIsIdempotent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	stageTransaction(t, s, "1", "C1", 100.5)
	stageTransaction(t, s, "2", "C1", 20)
	stageTransaction(t, s, "2", "C1", 20) // duplicate line in the extract

	n, err := Load(ctx, s, Transactions)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 inserted, got %d", n)
	}
	n, err = Load(ctx, s, Transactions)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected reload to insert nothing, got %d", n)
	}
	if c, _ := s.Count(ctx, "DWH_FACT_TRANSACTIONS"); c != 2 {
		t.Fatalf("expected 2 facts, got %d", c)
	}
}

func TestConflictingResendIsConstraintViolation(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	stageTransaction(t, s, "1", "C1", 100)
	if _, err := Load(ctx, s, Transactions); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := s.DB().ExecContext(ctx, `UPDATE STG_TRANSACTIONS SET amt = 999`); err != nil {
		t.Fatalf("update staging: %v", err)
	}
	_, err := Load(ctx, s, Transactions)
	if !errors.Is(err, warehouse.ErrConstraintViolation) {
		t.Fatalf("expected constraint violation, got %v", err)
	}
	var perr *warehouse.PhaseError
	if !errors.As(err, &perr) || perr.Phase != "facts:transactions" {
		t.Fatalf("expected facts phase error, got %v", err)
	}
}

func TestBlacklistAppend(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	for _, row := range [][2]string{{"1111 222333", "2021-03-01"}, {"1111 222333", "2021-03-02"}} {
		if _, err := s.DB().ExecContext(ctx, `INSERT INTO STG_PASSPORT_BLACKLIST VALUES (?, ?)`, row[0], row[1]); err != nil {
			t.Fatalf("stage: %v", err)
		}
	}
	n, err := Load(ctx, s, PassportBlacklist)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if n != 2 {
		t.Fatalf("same passport on distinct dates is two facts, got %d", n)
	}
	if n, _ = Load(ctx, s, PassportBlacklist); n != 0 {
		t.Fatalf("reload inserted %d", n)
	}
}
