package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "dwh.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenAppliesSchema(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, table := range []string{
		"DWH_DIM_CARDS", "DWH_DIM_ACCOUNTS", "DWH_DIM_CLIENTS",
		"DWH_DIM_CARDS_HIST", "DWH_DIM_ACCOUNTS_HIST", "DWH_DIM_CLIENTS_HIST", "DWH_DIM_TERMINALS_HIST",
		"DWH_FACT_TRANSACTIONS", "DWH_FACT_PASSPORT_BLACKLIST", "REP_FRAUD", "META_TABLE", "META_RUNS",
	} {
		ok, err := s.TableExists(ctx, table)
		if err != nil {
			t.Fatalf("table exists %s: %v", table, err)
		}
		if !ok {
			t.Fatalf("expected %s to exist", table)
		}
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestResetStagingClearsRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.ResetStaging(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := s.DB().ExecContext(ctx, `INSERT INTO STG_TERMINALS (terminal_id) VALUES ('T1')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if n, _ := s.Count(ctx, "STG_TERMINALS"); n != 1 {
		t.Fatalf("expected 1 staged row, got %d", n)
	}
	if err := s.ResetStaging(ctx); err != nil {
		t.Fatalf("reset again: %v", err)
	}
	if n, _ := s.Count(ctx, "STG_TERMINALS"); n != 0 {
		t.Fatalf("expected staging to be empty, got %d", n)
	}
}

func TestResetStagingDropsClassificationTables(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, stmt := range []string{
		`CREATE TABLE STG_NEW_ROWS_TERMINALS (terminal_id TEXT)`,
		`CREATE TABLE STG_DELETED_ROWS_CLIENTS (client_id TEXT)`,
	} {
		if _, err := s.DB().ExecContext(ctx, stmt); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := s.ResetStaging(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	for _, table := range []string{"STG_NEW_ROWS_TERMINALS", "STG_DELETED_ROWS_CLIENTS"} {
		ok, err := s.TableExists(ctx, table)
		if err != nil {
			t.Fatalf("table exists %s: %v", table, err)
		}
		if ok {
			t.Fatalf("expected %s to be dropped", table)
		}
	}
}

func TestRunInTransactionRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")
	err := s.RunInTransaction(ctx, "facts", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO DWH_FACT_PASSPORT_BLACKLIST VALUES ('1234 567890', '2021-03-01')`); err != nil {
			return err
		}
		return boom
	})
	var perr *PhaseError
	if !errors.As(err, &perr) || perr.Phase != "facts" {
		t.Fatalf("expected phase error, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if n, _ := s.Count(ctx, "DWH_FACT_PASSPORT_BLACKLIST"); n != 0 {
		t.Fatalf("expected rollback, found %d rows", n)
	}
}

func TestClassifyConstraint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	insert := `INSERT INTO DWH_FACT_TRANSACTIONS (trans_id, trans_date, amt) VALUES ('1', '2021-03-01 10:00:00', 10)`
	if _, err := s.DB().ExecContext(ctx, insert); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err := s.DB().ExecContext(ctx, insert)
	if err == nil {
		t.Fatalf("expected duplicate key failure")
	}
	err = Classify(err, "DWH_FACT_TRANSACTIONS")
	if !errors.Is(err, ErrConstraintViolation) {
		t.Fatalf("expected constraint violation, got %v", err)
	}
	var cerr *ConstraintError
	if !errors.As(err, &cerr) || cerr.Table != "DWH_FACT_TRANSACTIONS" {
		t.Fatalf("unexpected error shape: %#v", err)
	}
	if Classify(nil, "x") != nil {
		t.Fatalf("nil must stay nil")
	}
	other := errors.New("other")
	if Classify(other, "x") != other {
		t.Fatalf("non-constraint errors must pass through")
	}
}

func TestExecScriptStopsOnFailure(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	script := `
CREATE TABLE SCRIPT_T (id INTEGER PRIMARY KEY);
INSERT INTO SCRIPT_T VALUES (1);
INSERT INTO MISSING_T VALUES (1);
`
	if err := s.ExecScript(ctx, "source-script", script); err == nil {
		t.Fatalf("expected failure")
	}
	ok, err := s.TableExists(ctx, "SCRIPT_T")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if ok {
		t.Fatalf("script must apply atomically")
	}
}

func TestCountRejectsBadIdentifier(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Count(context.Background(), "REP_FRAUD; DROP TABLE REP_FRAUD"); err == nil {
		t.Fatalf("expected identifier rejection")
	}
}
