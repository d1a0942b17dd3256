package staging

import (
	"path/filepath"
	"strings"
	"testing"

	"frauddwh/testutil"
)

func TestReadTransactions(t *testing.T) {
	in := "transaction_id;transaction_date;amount;card_num;oper_type;oper_result;terminal\n" +
		"1;2021-03-01 00:00:01;35 000,50;4406 6893 0185 1355;PAYMENT;SUCCESS;P1\n" +
		"2;2021-03-01 00:05:00;100.25;4406 6893 0185 1355 ;WITHDRAW;REJECT;A1\n"
	got, err := ReadTransactions(strings.NewReader(in))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(got))
	}
	if got[0].Amount.String() != "35000.5" {
		t.Fatalf("unexpected amount %s", got[0].Amount)
	}
	if got[1].CardNum != "4406 6893 0185 1355" {
		t.Fatalf("card number must be trimmed, got %q", got[1].CardNum)
	}
	if got[1].Date.Format("15:04:05") != "00:05:00" {
		t.Fatalf("unexpected date %v", got[1].Date)
	}
}

func TestReadTransactionsErrors(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"missing column": "transaction_id;amount\n1;2\n",
		"bad date":       "transaction_id;transaction_date;amount;card_num;oper_type;oper_result;terminal\n1;01.03.2021;1;c;t;r;x\n",
		"bad amount":     "transaction_id;transaction_date;amount;card_num;oper_type;oper_result;terminal\n1;2021-03-01 00:00:00;abc;c;t;r;x\n",
	}
	for name, in := range cases {
		if _, err := ReadTransactions(strings.NewReader(in)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestReadWorkbooks(t *testing.T) {
	dir := t.TempDir()
	terms := testutil.WriteTerminals(t, dir, "01032021",
		testutil.TerminalRow{ID: "P1", Type: "POS", City: "Moscow", Address: "Lenina 1"},
		testutil.TerminalRow{ID: "A1", Type: "ATM", City: "Kazan", Address: "Mira 2"},
	)
	got, err := ReadTerminals(terms)
	if err != nil {
		t.Fatalf("read terminals: %v", err)
	}
	if len(got) != 2 || got[1].City != "Kazan" {
		t.Fatalf("unexpected terminals %+v", got)
	}

	black := testutil.WriteBlacklist(t, dir, "01032021",
		testutil.BlacklistRow{Date: "01.03.21", Passport: "1111 222333"},
		testutil.BlacklistRow{Date: "2021-02-27", Passport: "4444 555666"},
	)
	entries, err := ReadBlacklist(black)
	if err != nil {
		t.Fatalf("read blacklist: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].EntryDate.Format("2006-01-02") != "2021-03-01" || entries[1].EntryDate.Format("2006-01-02") != "2021-02-27" {
		t.Fatalf("unexpected dates %+v", entries)
	}
}

func TestReadBlacklistRejectsBadDate(t *testing.T) {
	path := testutil.WriteBlacklist(t, t.TempDir(), "01032021", testutil.BlacklistRow{Date: "someday", Passport: "1"})
	if _, err := ReadBlacklist(path); err == nil {
		t.Fatalf("expected date error")
	}
}

func TestParseEntryDateSerial(t *testing.T) {
	got, err := parseEntryDate("44256")
	if err != nil {
		t.Fatalf("parse serial: %v", err)
	}
	if got.Format("2006-01-02") != "2021-03-01" {
		t.Fatalf("unexpected serial date %v", got)
	}
}

func TestReadWorkbookMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terminals_01032021.xlsx")
	testutil.WriteWorkbook(t, path, [][]any{{"id", "city"}, {"T1", "Moscow"}})
	if _, err := ReadTerminals(path); err == nil {
		t.Fatalf("expected missing column error")
	}
}
