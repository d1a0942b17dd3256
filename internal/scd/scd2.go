package scd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"frauddwh/internal/warehouse"
)

// ErrClockSkew is returned when historization runs at an instant earlier
// than a version already recorded, or records a change for a key whose
// current version opened at the same instant. History has one-second
// resolution, so such a change cannot be given a valid interval.
var ErrClockSkew = errors.New("scd: run time does not follow recorded history")

// HistoryStats summarises one historization pass.
type HistoryStats struct {
	Opened    int64 // keys seen for the first time (or again after deletion)
	Changed   int64 // keys whose current version was superseded
	Deleted   int64 // keys that received a tombstone
	Unchanged int64
}

// Historize reconciles the history of e with its current source at now.
//
// Keys are classified into new, changed and deleted relations, then: the
// open version of every changed or deleted key is closed at now minus one
// Resolution; new and changed keys get a version open from now until
// SentinelMax; deleted keys get a tombstone [now, now] with deleted_flg = 1
// carrying their last known attributes.
func Historize(ctx context.Context, tx *sql.Tx, e Entity, now time.Time) (HistoryStats, error) {
	var stats HistoryStats
	if err := e.Validate(); err != nil {
		return stats, err
	}
	nowText := warehouse.FormatTimestamp(now)
	closeText := warehouse.FormatTimestamp(warehouse.CloseBefore(now))

	var latest sql.NullString
	if err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT MAX(effective_from) FROM %s`, e.History)).Scan(&latest); err != nil {
		return stats, fmt.Errorf("latest version of %s: %w", e.History, err)
	}
	if latest.Valid && latest.String > nowText {
		return stats, fmt.Errorf("%s: %w (latest %s, now %s)", e.Name, ErrClockSkew, latest.String, nowText)
	}

	var current int64
	currentCount := fmt.Sprintf(`SELECT COUNT(*) FROM %s h WHERE %s`, e.History, currentPredicate("h"))
	if err := tx.QueryRowContext(ctx, currentCount, nowText, nowText).Scan(&current); err != nil {
		return stats, fmt.Errorf("count current %s: %w", e.History, err)
	}

	if err := classify(ctx, tx, e, nowText); err != nil {
		return stats, err
	}

	var collisions int64
	collide := fmt.Sprintf(`SELECT COUNT(*) FROM %[1]s h
WHERE h.effective_from = ?
  AND h.%[2]s IN (SELECT %[2]s FROM %[3]s UNION SELECT %[2]s FROM %[4]s UNION SELECT %[2]s FROM %[5]s)`,
		e.History, e.Key, e.NewRowsTable(), e.ChangedRowsTable(), e.DeletedRowsTable())
	if err := tx.QueryRowContext(ctx, collide, nowText).Scan(&collisions); err != nil {
		return stats, fmt.Errorf("check versions at %s in %s: %w", nowText, e.History, err)
	}
	if collisions > 0 {
		return stats, fmt.Errorf("%s: %w (%d keys already versioned at %s)", e.Name, ErrClockSkew, collisions, nowText)
	}

	cols := e.Columns()
	colList := strings.Join(cols, ", ")

	closeSQL := fmt.Sprintf(`UPDATE %[1]s SET effective_to = ?
WHERE %[2]s
  AND %[3]s IN (SELECT %[3]s FROM %[4]s UNION SELECT %[3]s FROM %[5]s)`,
		e.History, currentPredicate(e.History), e.Key, e.ChangedRowsTable(), e.DeletedRowsTable())
	if _, err := tx.ExecContext(ctx, closeSQL, closeText, nowText, nowText); err != nil {
		return stats, fmt.Errorf("close versions in %s: %w", e.History, err)
	}

	insert := func(from, effectiveTo string, deleted int) (int64, error) {
		q := fmt.Sprintf(`INSERT INTO %s (%s, effective_from, effective_to, deleted_flg)
SELECT %s, ?, ?, ? FROM %s`, e.History, colList, colList, from)
		res, err := tx.ExecContext(ctx, q, nowText, effectiveTo, deleted)
		if err != nil {
			return 0, fmt.Errorf("insert into %s from %s: %w", e.History, from, warehouse.Classify(err, e.History))
		}
		return res.RowsAffected()
	}
	var err error
	if stats.Opened, err = insert(e.NewRowsTable(), warehouse.SentinelMaxText, 0); err != nil {
		return stats, err
	}
	if stats.Changed, err = insert(e.ChangedRowsTable(), warehouse.SentinelMaxText, 0); err != nil {
		return stats, err
	}
	if stats.Deleted, err = insert(e.DeletedRowsTable(), nowText, 1); err != nil {
		return stats, err
	}
	stats.Unchanged = current - stats.Changed - stats.Deleted
	return stats, nil
}

// currentPredicate selects the live version of each key at the instant
// bound twice as the following parameters.
func currentPredicate(alias string) string {
	return fmt.Sprintf("%[1]s.deleted_flg = 0 AND %[1]s.effective_from <= ? AND ? < %[1]s.effective_to", alias)
}

// classify rebuilds the new, changed and deleted relations for e.
func classify(ctx context.Context, tx *sql.Tx, e Entity, nowText string) error {
	cols := e.Columns()
	colList := strings.Join(cols, ", ")
	source := e.CurrentSource()
	current := fmt.Sprintf(`SELECT %s FROM %s h WHERE %s`, prefixed("h", cols), e.History, currentPredicate("h"))

	targets := []struct {
		table string
		query string
	}{
		{
			table: e.NewRowsTable(),
			query: fmt.Sprintf(`SELECT DISTINCT %[1]s FROM %[2]s s
WHERE s.%[3]s IS NOT NULL
  AND NOT EXISTS (SELECT 1 FROM (%[4]s) c WHERE c.%[3]s = s.%[3]s)`,
				prefixed("s", cols), source, e.Key, current),
		},
		{
			table: e.ChangedRowsTable(),
			query: fmt.Sprintf(`SELECT DISTINCT %[1]s FROM %[2]s s
JOIN (%[4]s) c ON c.%[3]s = s.%[3]s
WHERE %[5]s`,
				prefixed("s", cols), source, e.Key, current, differs("c", "s", e.Attributes)),
		},
		{
			table: e.DeletedRowsTable(),
			query: fmt.Sprintf(`SELECT %[1]s FROM (%[4]s) c
WHERE NOT EXISTS (SELECT 1 FROM %[2]s s WHERE s.%[3]s = c.%[3]s)`,
				prefixed("c", cols), source, e.Key, current),
		},
	}
	for _, t := range targets {
		stmts := []string{
			fmt.Sprintf(`DROP TABLE IF EXISTS %s`, t.table),
			fmt.Sprintf(`CREATE TABLE %s AS SELECT %s FROM %s WHERE 0`, t.table, colList, e.History),
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("prepare %s: %w", t.table, err)
			}
		}
		// the current-version subquery binds now twice
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (%s) %s`, t.table, colList, t.query), nowText, nowText); err != nil {
			return fmt.Errorf("classify %s: %w", t.table, err)
		}
	}
	return nil
}
