package staging

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"frauddwh/internal/warehouse"
)

var terminalColumns = []string{"terminal_id", "terminal_type", "terminal_city", "terminal_address"}

var blacklistColumns = []string{"date", "passport"}

// entryDateLayouts lists the date renderings seen in blacklist workbooks.
var entryDateLayouts = []string{
	warehouse.DateLayout,
	warehouse.TimestampLayout,
	"02.01.2006",
	"02.01.06",
	"01-02-06",
	"1/2/06",
	"1/2/2006",
}

// ReadTerminals parses the first worksheet of a terminals workbook.
func ReadTerminals(path string) ([]Terminal, error) {
	rows, idx, err := readSheet(path, terminalColumns)
	if err != nil {
		return nil, err
	}
	out := make([]Terminal, 0, len(rows))
	for _, row := range rows {
		out = append(out, Terminal{
			ID:      cell(row, idx["terminal_id"]),
			Type:    cell(row, idx["terminal_type"]),
			City:    cell(row, idx["terminal_city"]),
			Address: cell(row, idx["terminal_address"]),
		})
	}
	return out, nil
}

// ReadBlacklist parses the first worksheet of a passport blacklist workbook.
func ReadBlacklist(path string) ([]BlacklistEntry, error) {
	rows, idx, err := readSheet(path, blacklistColumns)
	if err != nil {
		return nil, err
	}
	out := make([]BlacklistEntry, 0, len(rows))
	for i, row := range rows {
		day, err := parseEntryDate(cell(row, idx["date"]))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+2, err)
		}
		out = append(out, BlacklistEntry{Passport: cell(row, idx["passport"]), EntryDate: day})
	}
	return out, nil
}

// readSheet returns the non-empty data rows of the first worksheet and the
// header index of the required columns.
func readSheet(path string, required []string) ([][]string, map[string]int, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("workbook %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read %s!%s: %w", path, sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("workbook %s is empty", path)
	}
	idx, err := indexHeader(rows[0], required)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	data := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}
		data = append(data, row)
	}
	return data, idx, nil
}

// cell tolerates short rows: GetRows trims trailing empty cells.
func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

func parseEntryDate(s string) (time.Time, error) {
	for _, layout := range entryDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	// unformatted cells carry the spreadsheet serial number
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		return excelize.ExcelDateToTime(serial, false)
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
