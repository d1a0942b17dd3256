// Package metadata maintains META_TABLE freshness stamps and the META_RUNS
// journal.
package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"frauddwh/internal/warehouse"
)

// Run statuses stored in META_RUNS.status.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// TrackedTables lists the warehouse relations whose refresh time is kept.
var TrackedTables = []string{
	"DWH_DIM_CARDS",
	"DWH_DIM_ACCOUNTS",
	"DWH_DIM_CLIENTS",
	"DWH_DIM_CARDS_HIST",
	"DWH_DIM_ACCOUNTS_HIST",
	"DWH_DIM_CLIENTS_HIST",
	"DWH_DIM_TERMINALS_HIST",
	"DWH_FACT_TRANSACTIONS",
	"DWH_FACT_PASSPORT_BLACKLIST",
	"REP_FRAUD",
}

// Run is one META_RUNS row.
type Run struct {
	ID         string
	BatchDate  string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Status     string
	Error      sql.NullString
}

// Touch stamps last_update for every tracked table that exists and for any
// other META_TABLE row naming an existing table. It returns the rows touched.
func Touch(ctx context.Context, q warehouse.Querier, at time.Time) (int64, error) {
	stamp := warehouse.FormatTimestamp(at)
	var n int64
	for _, name := range TrackedTables {
		ok, err := warehouse.TableExists(ctx, q, name)
		if err != nil {
			return n, err
		}
		if !ok {
			continue
		}
		if _, err := q.ExecContext(ctx, `INSERT INTO META_TABLE (tbl_name, last_update) VALUES (?, ?)
ON CONFLICT(tbl_name) DO UPDATE SET last_update = excluded.last_update`, name, stamp); err != nil {
			return n, fmt.Errorf("touch %s: %w", name, err)
		}
		n++
	}
	res, err := q.ExecContext(ctx, `UPDATE META_TABLE SET last_update = ?
WHERE last_update IS NOT ?
  AND EXISTS (SELECT 1 FROM sqlite_master m WHERE m.type = 'table' AND m.name = META_TABLE.tbl_name)`, stamp, stamp)
	if err != nil {
		return n, fmt.Errorf("touch meta table: %w", err)
	}
	extra, err := res.RowsAffected()
	if err != nil {
		return n, err
	}
	return n + extra, nil
}

// LastUpdate returns the stamp recorded for table.
func LastUpdate(ctx context.Context, q warehouse.Querier, table string) (time.Time, bool, error) {
	var stamp sql.NullString
	err := q.QueryRowContext(ctx, `SELECT last_update FROM META_TABLE WHERE tbl_name = ?`, table).Scan(&stamp)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !stamp.Valid) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last update %s: %w", table, err)
	}
	t, err := warehouse.ParseTimestamp(stamp.String)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// StartRun inserts a running journal entry.
func StartRun(ctx context.Context, q warehouse.Querier, id, batchDate string, at time.Time) error {
	if _, err := q.ExecContext(ctx, `INSERT INTO META_RUNS (run_id, batch_date, started_at, status) VALUES (?, ?, ?, ?)`,
		id, batchDate, warehouse.FormatTimestamp(at), StatusRunning); err != nil {
		return fmt.Errorf("start run %s: %w", id, err)
	}
	return nil
}

// FinishRun closes the journal entry; a non-nil runErr marks it failed.
func FinishRun(ctx context.Context, q warehouse.Querier, id string, at time.Time, runErr error) error {
	status := StatusSucceeded
	var msg sql.NullString
	if runErr != nil {
		status = StatusFailed
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := q.ExecContext(ctx, `UPDATE META_RUNS SET finished_at = ?, status = ?, error = ? WHERE run_id = ?`,
		warehouse.FormatTimestamp(at), status, msg, id)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: not started", id)
	}
	return nil
}

// GetRun loads one journal entry.
func GetRun(ctx context.Context, q warehouse.Querier, id string) (Run, error) {
	var (
		r                 Run
		started, finished sql.NullString
	)
	err := q.QueryRowContext(ctx, `SELECT run_id, batch_date, started_at, finished_at, status, error
FROM META_RUNS WHERE run_id = ?`, id).Scan(&r.ID, &r.BatchDate, &started, &finished, &r.Status, &r.Error)
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	if r.StartedAt, err = warehouse.ParseTimestamp(started.String); err != nil {
		return Run{}, err
	}
	if finished.Valid {
		t, err := warehouse.ParseTimestamp(finished.String)
		if err != nil {
			return Run{}, err
		}
		r.FinishedAt = sql.NullTime{Time: t, Valid: true}
	}
	return r, nil
}
