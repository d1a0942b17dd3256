package staging

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"frauddwh/internal/warehouse"
)

// Transaction extract header names.
const (
	colTransactionID   = "transaction_id"
	colTransactionDate = "transaction_date"
	colAmount          = "amount"
	colCardNum         = "card_num"
	colOperType        = "oper_type"
	colOperResult      = "oper_result"
	colTerminal        = "terminal"
)

var transactionColumns = []string{
	colTransactionID, colTransactionDate, colAmount, colCardNum, colOperType, colOperResult, colTerminal,
}

// ReadTransactionsFile parses the ';'-separated transactions extract at path.
func ReadTransactionsFile(path string) ([]Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transactions: %w", err)
	}
	defer func() { _ = f.Close() }()
	txns, err := ReadTransactions(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return txns, nil
}

// ReadTransactions parses a ';'-separated transactions extract with a header
// row. Amounts accept either ',' or '.' as decimal separator.
func ReadTransactions(r io.Reader) ([]Transaction, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("transactions extract is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx, err := indexHeader(header, transactionColumns)
	if err != nil {
		return nil, err
	}
	var out []Transaction
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		line, _ := cr.FieldPos(0)
		get := func(col string) string { return strings.TrimSpace(rec[idx[col]]) }
		date, err := time.Parse(warehouse.TimestampLayout, get(colTransactionDate))
		if err != nil {
			return nil, fmt.Errorf("line %d: transaction_date: %w", line, err)
		}
		amt, err := decimal.NewFromString(strings.ReplaceAll(strings.ReplaceAll(get(colAmount), " ", ""), ",", "."))
		if err != nil {
			return nil, fmt.Errorf("line %d: amount: %w", line, err)
		}
		out = append(out, Transaction{
			ID:         get(colTransactionID),
			Date:       date,
			Amount:     amt,
			CardNum:    get(colCardNum),
			OperType:   get(colOperType),
			OperResult: get(colOperResult),
			Terminal:   get(colTerminal),
		})
	}
	return out, nil
}

// indexHeader maps every required column to its position in header.
func indexHeader(header, required []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		idx[h] = i
	}
	var missing []string
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return idx, nil
}
