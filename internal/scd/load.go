package scd

import (
	"context"
	"database/sql"
	"time"

	"frauddwh/internal/warehouse"
)

// Result collects the outcome of both SCD phases for one entity.
type Result struct {
	Entity  string
	Merge   MergeStats
	History HistoryStats
}

// Load runs the SCD1 merge (when the entity has a dimension) and then
// historization, each in its own transaction.
func Load(ctx context.Context, store *warehouse.Store, e Entity, now time.Time) (Result, error) {
	res := Result{Entity: e.Name}
	if e.HasSCD1() {
		err := store.RunInTransaction(ctx, "scd1:"+e.Name, func(tx *sql.Tx) error {
			var err error
			res.Merge, err = MergeSCD1(ctx, tx, e)
			return err
		})
		if err != nil {
			return res, err
		}
	}
	err := store.RunInTransaction(ctx, "scd2:"+e.Name, func(tx *sql.Tx) error {
		var err error
		res.History, err = Historize(ctx, tx, e, now)
		return err
	})
	return res, err
}
