package fraud

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"frauddwh/internal/warehouse"
)

// Summary reports one engine run.
type Summary struct {
	Candidates map[EventType]int64 // rows each rule staged
	Reported   int64               // rows the dedup gate added to REP_FRAUD
}

// Engine runs registered rules and the dedup gate as a single phase.
type Engine struct {
	rules  []Rule
	logger *zap.Logger
}

// NewEngine constructs an engine without rules.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// NewDefaultEngine builds an engine with the four built-in rules.
func NewDefaultEngine(logger *zap.Logger) *Engine {
	e := NewEngine(logger)
	e.Register(NewPassportRule())
	e.Register(NewAccountRule())
	e.Register(NewDifferentCityRule())
	e.Register(NewStructuringRule())
	return e
}

// Register appends a rule to the engine.
func (e *Engine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rules in evaluation order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Run evaluates the engine in its own transaction. A failure leaves
// REP_FRAUD untouched.
func (e *Engine) Run(ctx context.Context, store *warehouse.Store, p Params) (Summary, error) {
	var sum Summary
	err := store.RunInTransaction(ctx, "fraud", func(tx *sql.Tx) error {
		var err error
		sum, err = e.Evaluate(ctx, tx, p)
		return err
	})
	return sum, err
}

// Evaluate clears STG_REP_FRAUD, runs every rule and moves new events into
// REP_FRAUD inside tx. Callers that commit further writes with the report
// use it instead of Run.
func (e *Engine) Evaluate(ctx context.Context, tx *sql.Tx, p Params) (Summary, error) {
	sum := Summary{Candidates: make(map[EventType]int64, len(e.rules))}
	if _, err := tx.ExecContext(ctx, `DELETE FROM STG_REP_FRAUD`); err != nil {
		return sum, fmt.Errorf("clear candidates: %w", err)
	}
	for _, rule := range e.rules {
		start := time.Now()
		n, err := rule.Detect(ctx, tx, p)
		if err != nil {
			return sum, err
		}
		sum.Candidates[rule.EventType()] += n
		e.logger.Debug("rule evaluated",
			zap.String("rule", rule.Name()),
			zap.Int64("candidates", n),
			zap.Duration("took", time.Since(start)))
	}
	n, err := DedupGate(ctx, tx)
	if err != nil {
		return sum, err
	}
	sum.Reported = n
	return sum, nil
}

// DedupGate copies staged candidates into REP_FRAUD unless an identical
// (event_dt, passport, fio, phone, event_type) tuple is already reported.
// Candidate and report fields are compared pairwise with IS so NULLs match;
// duplicates inside staging collapse to one row with the earliest report_dt.
func DedupGate(ctx context.Context, tx *sql.Tx) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO REP_FRAUD (event_dt, passport, fio, phone, event_type, report_dt)
SELECT s.event_dt, s.passport, s.fio, s.phone, s.event_type, MIN(s.report_dt)
FROM STG_REP_FRAUD s
WHERE NOT EXISTS (
    SELECT 1 FROM REP_FRAUD r
    WHERE r.event_dt IS s.event_dt
      AND r.passport IS s.passport
      AND r.fio IS s.fio
      AND r.phone IS s.phone
      AND r.event_type IS s.event_type
)
GROUP BY s.event_dt, s.passport, s.fio, s.phone, s.event_type`)
	if err != nil {
		return 0, fmt.Errorf("dedup gate: %w", warehouse.Classify(err, "REP_FRAUD"))
	}
	return res.RowsAffected()
}
