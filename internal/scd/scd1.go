package scd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"frauddwh/internal/warehouse"
)

// ErrNoDimension is returned by MergeSCD1 for entities without an SCD1 table.
var ErrNoDimension = errors.New("scd: entity has no SCD1 dimension")

// MergeStats summarises one SCD1 merge.
type MergeStats struct {
	Inserted  int64
	Updated   int64
	Unchanged int64
}

// MergeSCD1 upserts the staged snapshot of e into its dimension. Rows are
// matched on the natural key; a matched row is rewritten from staging only
// when some tracked column differs. Rows missing from staging are kept.
func MergeSCD1(ctx context.Context, tx *sql.Tx, e Entity) (MergeStats, error) {
	if !e.HasSCD1() {
		return MergeStats{}, fmt.Errorf("%s: %w", e.Name, ErrNoDimension)
	}
	if err := e.Validate(); err != nil {
		return MergeStats{}, err
	}
	var stats MergeStats
	cols := e.scd1Columns()
	tracked := cols[1:]

	var staged int64
	countSQL := fmt.Sprintf(`SELECT COUNT(DISTINCT %s) FROM %s WHERE %s IS NOT NULL`, e.Key, e.Staging, e.Key)
	if err := tx.QueryRowContext(ctx, countSQL).Scan(&staged); err != nil {
		return stats, fmt.Errorf("count %s: %w", e.Staging, err)
	}

	assignments := make([]string, len(tracked))
	for i, c := range tracked {
		assignments[i] = fmt.Sprintf("%s = s.%s", c, c)
	}
	updateSQL := fmt.Sprintf(`UPDATE %[1]s SET %[2]s
FROM %[3]s AS s
WHERE %[1]s.%[4]s = s.%[4]s AND %[5]s`,
		e.Dimension, strings.Join(assignments, ", "), e.Staging, e.Key, differs(e.Dimension, "s", tracked))
	res, err := tx.ExecContext(ctx, updateSQL)
	if err != nil {
		return stats, fmt.Errorf("update %s: %w", e.Dimension, warehouse.Classify(err, e.Dimension))
	}
	if stats.Updated, err = res.RowsAffected(); err != nil {
		return stats, err
	}

	insertSQL := fmt.Sprintf(`INSERT INTO %[1]s (%[2]s)
SELECT DISTINCT %[3]s FROM %[4]s AS s
WHERE s.%[5]s IS NOT NULL
  AND NOT EXISTS (SELECT 1 FROM %[1]s AS d WHERE d.%[5]s = s.%[5]s)`,
		e.Dimension, strings.Join(cols, ", "), prefixed("s", cols), e.Staging, e.Key)
	res, err = tx.ExecContext(ctx, insertSQL)
	if err != nil {
		return stats, fmt.Errorf("insert %s: %w", e.Dimension, warehouse.Classify(err, e.Dimension))
	}
	if stats.Inserted, err = res.RowsAffected(); err != nil {
		return stats, err
	}
	stats.Unchanged = staged - stats.Inserted - stats.Updated
	return stats, nil
}
