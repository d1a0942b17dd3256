// Package staging locates the dated extracts of a batch, parses them and
// writes typed rows into the STG_* relations.
package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"frauddwh/internal/warehouse"
)

// TokenLayout is the ddmmyyyy form of a batch date token.
const TokenLayout = "02012006"

// Extract name prefixes and extensions.
const (
	TerminalsPrefix    = "terminals_"
	TransactionsPrefix = "transactions_"
	BlacklistPrefix    = "passport_blacklist_"

	spreadsheetExt = ".xlsx"
	textExt        = ".txt"
)

var (
	tokenPattern     = regexp.MustCompile(`\d{8}`)
	separatedPattern = regexp.MustCompile(`^(\d\d)\W?(\d\d)\W?(\d{4})$`)
)

// Files holds the paths of the three extracts of a batch.
type Files struct {
	Terminals    string
	Transactions string
	Blacklist    string
}

// Paths lists the extracts in archive order.
func (f Files) Paths() []string {
	return []string{f.Blacklist, f.Terminals, f.Transactions}
}

// Batch identifies one run's input.
type Batch struct {
	Token string
	Date  time.Time
	Dir   string
	Files Files
}

// NormalizeDateToken accepts ddmmyyyy optionally separated by one non-word
// character ("01.03.2021", "01/03/2021") and returns the bare token.
func NormalizeDateToken(s string) (string, error) {
	m := separatedPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", fmt.Errorf("invalid batch date %q: want ddmmyyyy", s)
	}
	token := m[1] + m[2] + m[3]
	if _, err := ParseBatchDate(token); err != nil {
		return "", err
	}
	return token, nil
}

// ParseBatchDate converts a ddmmyyyy token into a date.
func ParseBatchDate(token string) (time.Time, error) {
	t, err := time.Parse(TokenLayout, token)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid batch date %q: %w", token, err)
	}
	return t, nil
}

// DetectBatchDate returns the token of the first terminals extract in dir,
// in lexical order.
func DetectBatchDate(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if !strings.HasPrefix(name, TerminalsPrefix) {
			continue
		}
		if token := tokenPattern.FindString(name); token != "" {
			return token, nil
		}
	}
	return "", fmt.Errorf("no %s* extract in %s: %w", TerminalsPrefix, dir, warehouse.ErrInputNotFound)
}

// Locate finds the three extracts for token in dir.
func Locate(dir, token string) (Files, error) {
	var files Files
	var err error
	if files.Terminals, err = find(dir, TerminalsPrefix+token, spreadsheetExt); err != nil {
		return Files{}, err
	}
	if files.Transactions, err = find(dir, TransactionsPrefix+token, textExt); err != nil {
		return Files{}, err
	}
	if files.Blacklist, err = find(dir, BlacklistPrefix+token, spreadsheetExt); err != nil {
		return Files{}, err
	}
	return files, nil
}

// Discover resolves the batch in dir. An empty date selects the token of
// the first terminals extract.
func Discover(dir, date string) (Batch, error) {
	var (
		token string
		err   error
	)
	if strings.TrimSpace(date) == "" {
		token, err = DetectBatchDate(dir)
	} else {
		token, err = NormalizeDateToken(date)
	}
	if err != nil {
		return Batch{}, err
	}
	day, err := ParseBatchDate(token)
	if err != nil {
		return Batch{}, err
	}
	files, err := Locate(dir, token)
	if err != nil {
		return Batch{}, err
	}
	return Batch{Token: token, Date: day, Dir: dir, Files: files}, nil
}

func find(dir, prefix, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", dir, err)
	}
	var matches []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ext) {
			matches = append(matches, name)
		}
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%s*%s in %s: %w", prefix, ext, dir, warehouse.ErrInputNotFound)
	}
	sort.Strings(matches)
	return filepath.Join(dir, matches[0]), nil
}
