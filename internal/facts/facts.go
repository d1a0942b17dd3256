// Package facts appends immutable event rows from staging into the fact
// tables. Loading is idempotent on the full key.
package facts

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"frauddwh/internal/warehouse"
)

// Fact describes a staged relation and the fact table it feeds.
type Fact struct {
	Name    string
	Staging string
	Table   string
	Columns []string
	Key     []string // subset of Columns identifying one event
}

// Built-in facts.
var (
	Transactions = Fact{
		Name:    "transactions",
		Staging: "STG_TRANSACTIONS",
		Table:   "DWH_FACT_TRANSACTIONS",
		Columns: []string{"trans_id", "trans_date", "card_num", "oper_type", "amt", "oper_result", "terminal"},
		Key:     []string{"trans_id", "trans_date", "card_num", "oper_type", "amt", "oper_result", "terminal"},
	}
	PassportBlacklist = Fact{
		Name:    "passport_blacklist",
		Staging: "STG_PASSPORT_BLACKLIST",
		Table:   "DWH_FACT_PASSPORT_BLACKLIST",
		Columns: []string{"passport_num", "entry_dt"},
		Key:     []string{"passport_num", "entry_dt"},
	}
)

// All returns every built-in fact.
func All() []Fact { return []Fact{Transactions, PassportBlacklist} }

func (f Fact) validate() error {
	if len(f.Columns) == 0 || len(f.Key) == 0 {
		return fmt.Errorf("fact %q: columns and key are required", f.Name)
	}
	for _, id := range append(append([]string{f.Staging, f.Table}, f.Columns...), f.Key...) {
		if err := warehouse.ValidateIdent(id); err != nil {
			return fmt.Errorf("fact %q: %w", f.Name, err)
		}
	}
	return nil
}

// Append inserts every staged row of f whose full key is not yet present
// in the fact table and returns the number of rows added. Keys are compared
// NULL-safe. A staged row that collides with an existing row on a table
// constraint without matching the full key fails with a ConstraintError.
func Append(ctx context.Context, tx *sql.Tx, f Fact) (int64, error) {
	if err := f.validate(); err != nil {
		return 0, err
	}
	match := make([]string, len(f.Key))
	for i, c := range f.Key {
		match[i] = fmt.Sprintf("t.%s IS s.%s", c, c)
	}
	cols := strings.Join(f.Columns, ", ")
	src := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		src[i] = "s." + c
	}
	q := fmt.Sprintf(`INSERT INTO %s (%s)
SELECT DISTINCT %s FROM %s AS s
WHERE NOT EXISTS (SELECT 1 FROM %s AS t WHERE %s)`,
		f.Table, cols, strings.Join(src, ", "), f.Staging, f.Table, strings.Join(match, " AND "))
	res, err := tx.ExecContext(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("append %s: %w", f.Table, warehouse.Classify(err, f.Table))
	}
	return res.RowsAffected()
}

// Load appends f in its own transaction.
func Load(ctx context.Context, store *warehouse.Store, f Fact) (int64, error) {
	var n int64
	err := store.RunInTransaction(ctx, "facts:"+f.Name, func(tx *sql.Tx) error {
		var err error
		n, err = Append(ctx, tx, f)
		return err
	})
	return n, err
}
