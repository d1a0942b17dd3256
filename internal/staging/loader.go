package staging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"frauddwh/internal/warehouse"
)

// DefaultSourceScript is the SQL file refreshing the source system tables.
const DefaultSourceScript = "ddl_dml.sql"

// Counts reports the rows written into each staging relation.
type Counts map[string]int64

// sourceCopy moves a source system table into staging, renaming columns to
// the warehouse vocabulary.
type sourceCopy struct {
	source  string
	staging string
	query   string
}

var sourceCopies = []sourceCopy{
	{
		source:  "CARDS",
		staging: "STG_CARDS",
		query: `INSERT INTO STG_CARDS (card_num, account_num, create_dt, update_dt)
SELECT TRIM(card_num), TRIM(account), create_dt, update_dt FROM CARDS`,
	},
	{
		source:  "ACCOUNTS",
		staging: "STG_ACCOUNTS",
		query: `INSERT INTO STG_ACCOUNTS (account_num, valid_to, client, create_dt, update_dt)
SELECT TRIM(account), valid_to, client, create_dt, update_dt FROM ACCOUNTS`,
	},
	{
		source:  "CLIENTS",
		staging: "STG_CLIENTS",
		query: `INSERT INTO STG_CLIENTS (client_id, last_name, first_name, patronymic, date_of_birth,
    passport_num, passport_valid_to, phone, create_dt, update_dt)
SELECT client_id, last_name, first_name, patronymic, date_of_birth,
    passport_num, passport_valid_to, phone, create_dt, update_dt FROM CLIENTS`,
	},
}

// Loader stages one batch.
type Loader struct {
	logger *zap.Logger
}

// NewLoader constructs a Loader.
func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger}
}

// ApplySourceScript runs the source system script in dir when it exists and
// reports whether it ran.
func (l *Loader) ApplySourceScript(ctx context.Context, store *warehouse.Store, dir, name string) (bool, error) {
	if name == "" {
		name = DefaultSourceScript
	}
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, name)
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		l.logger.Debug("no source script", zap.String("path", path))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read source script: %w", err)
	}
	if err := store.ExecScript(ctx, "source-script", string(b)); err != nil {
		return false, err
	}
	l.logger.Info("source script applied", zap.String("path", path))
	return true, nil
}

// Parsed holds the decoded extracts of a batch.
type Parsed struct {
	Terminals    []Terminal
	Transactions []Transaction
	Blacklist    []BlacklistEntry
}

// Parse reads all three extracts of files.
func (l *Loader) Parse(files Files) (Parsed, error) {
	var (
		p   Parsed
		err error
	)
	if p.Terminals, err = ReadTerminals(files.Terminals); err != nil {
		return Parsed{}, err
	}
	if p.Transactions, err = ReadTransactionsFile(files.Transactions); err != nil {
		return Parsed{}, err
	}
	if p.Blacklist, err = ReadBlacklist(files.Blacklist); err != nil {
		return Parsed{}, err
	}
	return p, nil
}

// Stage writes parsed extracts and the source system snapshots into the
// staging relations, which must be empty.
func (l *Loader) Stage(ctx context.Context, tx *sql.Tx, p Parsed) (Counts, error) {
	counts := Counts{}
	var err error
	if counts["STG_TERMINALS"], err = insertRows(ctx, tx,
		`INSERT INTO STG_TERMINALS (terminal_id, terminal_type, terminal_city, terminal_address) VALUES (?, ?, ?, ?)`,
		len(p.Terminals), func(i int) []any {
			t := p.Terminals[i]
			return []any{t.ID, t.Type, t.City, t.Address}
		}); err != nil {
		return nil, fmt.Errorf("stage terminals: %w", err)
	}
	if counts["STG_TRANSACTIONS"], err = insertRows(ctx, tx,
		`INSERT INTO STG_TRANSACTIONS (trans_id, trans_date, card_num, oper_type, amt, oper_result, terminal) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		len(p.Transactions), func(i int) []any {
			t := p.Transactions[i]
			return []any{t.ID, warehouse.FormatTimestamp(t.Date), t.CardNum, t.OperType, t.Amount.InexactFloat64(), t.OperResult, t.Terminal}
		}); err != nil {
		return nil, fmt.Errorf("stage transactions: %w", err)
	}
	if counts["STG_PASSPORT_BLACKLIST"], err = insertRows(ctx, tx,
		`INSERT INTO STG_PASSPORT_BLACKLIST (passport_num, entry_dt) VALUES (?, ?)`,
		len(p.Blacklist), func(i int) []any {
			b := p.Blacklist[i]
			return []any{b.Passport, warehouse.FormatDate(b.EntryDate)}
		}); err != nil {
		return nil, fmt.Errorf("stage blacklist: %w", err)
	}
	for _, c := range sourceCopies {
		ok, err := warehouse.TableExists(ctx, tx, c.source)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("source table %s: %w", c.source, warehouse.ErrInputNotFound)
		}
		res, err := tx.ExecContext(ctx, c.query)
		if err != nil {
			return nil, fmt.Errorf("copy %s: %w", c.source, err)
		}
		if counts[c.staging], err = res.RowsAffected(); err != nil {
			return nil, err
		}
	}
	for table, n := range counts {
		l.logger.Debug("staged", zap.String("table", table), zap.Int64("rows", n))
	}
	return counts, nil
}

func insertRows(ctx context.Context, tx *sql.Tx, query string, n int, row func(i int) []any) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer func() { _ = stmt.Close() }()
	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			return int64(i), err
		}
	}
	return int64(n), nil
}
