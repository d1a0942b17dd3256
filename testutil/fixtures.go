package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

// SourceTables creates the source system tables a batch copies into staging.
const SourceTables = `
CREATE TABLE IF NOT EXISTS CARDS (
    card_num TEXT PRIMARY KEY,
    account TEXT,
    create_dt TEXT,
    update_dt TEXT
);
CREATE TABLE IF NOT EXISTS ACCOUNTS (
    account TEXT PRIMARY KEY,
    valid_to TEXT,
    client TEXT,
    create_dt TEXT,
    update_dt TEXT
);
CREATE TABLE IF NOT EXISTS CLIENTS (
    client_id TEXT PRIMARY KEY,
    last_name TEXT,
    first_name TEXT,
    patronymic TEXT,
    date_of_birth TEXT,
    passport_num TEXT,
    passport_valid_to TEXT,
    phone TEXT,
    create_dt TEXT,
    update_dt TEXT
);
`

// TerminalRow is one terminals extract row.
type TerminalRow struct {
	ID, Type, City, Address string
}

// TransactionRow is one transactions extract line; fields are written as is.
type TransactionRow struct {
	ID, Date, Amount, Card, OperType, Result, Terminal string
}

// BlacklistRow is one blacklist extract row; Date is written as text.
type BlacklistRow struct {
	Date, Passport string
}

// WriteWorkbook saves rows (header first) as the first sheet of an xlsx file.
func WriteWorkbook(t testing.TB, path string, rows [][]any) {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		r := row
		if err := f.SetSheetRow(sheet, cellRef, &r); err != nil {
			t.Fatalf("set row %d: %v", i+1, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook %s: %v", path, err)
	}
}

// WriteTerminals writes terminals_<token>.xlsx into dir and returns its path.
func WriteTerminals(t testing.TB, dir, token string, rows ...TerminalRow) string {
	t.Helper()
	data := [][]any{{"terminal_id", "terminal_type", "terminal_city", "terminal_address"}}
	for _, r := range rows {
		data = append(data, []any{r.ID, r.Type, r.City, r.Address})
	}
	path := filepath.Join(dir, fmt.Sprintf("terminals_%s.xlsx", token))
	WriteWorkbook(t, path, data)
	return path
}

// WriteBlacklist writes passport_blacklist_<token>.xlsx into dir and returns its path.
func WriteBlacklist(t testing.TB, dir, token string, rows ...BlacklistRow) string {
	t.Helper()
	data := [][]any{{"date", "passport"}}
	for _, r := range rows {
		data = append(data, []any{r.Date, r.Passport})
	}
	path := filepath.Join(dir, fmt.Sprintf("passport_blacklist_%s.xlsx", token))
	WriteWorkbook(t, path, data)
	return path
}

// WriteTransactions writes transactions_<token>.txt into dir and returns its path.
func WriteTransactions(t testing.TB, dir, token string, rows ...TransactionRow) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("transaction_id;transaction_date;amount;card_num;oper_type;oper_result;terminal\n")
	for _, r := range rows {
		b.WriteString(strings.Join([]string{r.ID, r.Date, r.Amount, r.Card, r.OperType, r.Result, r.Terminal}, ";"))
		b.WriteByte('\n')
	}
	path := filepath.Join(dir, fmt.Sprintf("transactions_%s.txt", token))
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
