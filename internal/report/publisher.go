// Package report mirrors REP_FRAUD into a PostgreSQL reporting database.
package report

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"go.uber.org/zap"

	"frauddwh/internal/fraud"
)

const driverName = "pgx"

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

const ddl = `CREATE TABLE IF NOT EXISTS rep_fraud (
	event_dt   TIMESTAMP NOT NULL,
	passport   TEXT,
	fio        TEXT,
	phone      TEXT,
	event_type SMALLINT NOT NULL,
	report_dt  TIMESTAMP NOT NULL,
	CONSTRAINT rep_fraud_event_uq UNIQUE NULLS NOT DISTINCT (event_dt, passport, fio, phone, event_type)
)`

const insertEvent = `INSERT INTO rep_fraud (event_dt, passport, fio, phone, event_type, report_dt)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT ON CONSTRAINT rep_fraud_event_uq DO NOTHING`

// Publisher appends report events to PostgreSQL.
type Publisher struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open connects to dsn and ensures rep_fraud exists.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Publisher, error) {
	if dsn == "" {
		return nil, fmt.Errorf("report dsn required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	openMu.Lock()
	db, err := sqlOpen(driverName, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure rep_fraud: %w", err)
	}
	return &Publisher{db: db, logger: logger}, nil
}

// Close releases the connection pool.
func (p *Publisher) Close() error { return p.db.Close() }

// Publish inserts events in one transaction and returns how many were new.
// Events already present are skipped, so repeated publishes are harmless.
func (p *Publisher) Publish(ctx context.Context, events []fraud.Event) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin publish: %w", err)
	}
	var inserted int64
	for _, ev := range events {
		res, err := tx.ExecContext(ctx, insertEvent,
			ev.EventDT.UTC(), ev.Passport, ev.FIO, ev.Phone, int(ev.EventType), ev.ReportDT.UTC())
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("insert event: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit publish: %w", err)
	}
	p.logger.Info("report published", zap.Int("events", len(events)), zap.Int64("inserted", inserted))
	return inserted, nil
}
