package fraud

import (
	"context"
	"database/sql"
	"fmt"

	"frauddwh/internal/warehouse"
)

// Rule detects one fraud pattern and writes candidates into STG_REP_FRAUD.
type Rule interface {
	Name() string
	EventType() EventType
	Detect(ctx context.Context, tx *sql.Tx, p Params) (int64, error)
}

const (
	// DifferentCityWindowSeconds bounds the gap between two transactions in different cities.
	DifferentCityWindowSeconds = 3600
	// StructuringWindowSeconds bounds the span of the reject, reject, reject, success sequence.
	StructuringWindowSeconds = 1200
)

const candidateColumns = `event_dt, passport, fio, phone, event_type, report_dt`

const fio = `cl.last_name || ' ' || cl.first_name || ' ' || cl.patronymic`

// current selects the open, non-deleted version of a history row.
func current(alias string) string {
	return fmt.Sprintf("%[1]s.effective_to = '%[2]s' AND %[1]s.deleted_flg = 0", alias, warehouse.SentinelMaxText)
}

// ownerChain joins card, account and client history to the card_num column
// exposed by alias.
func ownerChain(join, alias string) string {
	return fmt.Sprintf(`%[1]s DWH_DIM_CARDS_HIST c ON c.card_num = %[2]s.card_num AND %[3]s
%[1]s DWH_DIM_ACCOUNTS_HIST a ON a.account_num = c.account_num AND %[4]s
%[1]s DWH_DIM_CLIENTS_HIST cl ON cl.client_id = a.client AND %[5]s`,
		join, alias, current("c"), current("a"), current("cl"))
}

func exec(ctx context.Context, tx *sql.Tx, rule, query string, args ...any) (int64, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("rule %s: %w", rule, err)
	}
	return res.RowsAffected()
}

type passportRule struct{ query string }

// NewPassportRule flags every transaction of a client whose passport has
// expired on the reference date or is blacklisted.
func NewPassportRule() Rule {
	q := fmt.Sprintf(`INSERT INTO STG_REP_FRAUD (%s)
SELECT t.trans_date, cl.passport_num, %s, cl.phone, ?, ?
FROM DWH_FACT_TRANSACTIONS t
%s
WHERE ? >= date(cl.passport_valid_to)
   OR cl.passport_num IN (SELECT passport_num FROM DWH_FACT_PASSPORT_BLACKLIST)`,
		candidateColumns, fio, ownerChain("JOIN", "t"))
	return passportRule{query: q}
}

func (passportRule) Name() string         { return "passport_fraud" }
func (passportRule) EventType() EventType { return EventPassport }

func (r passportRule) Detect(ctx context.Context, tx *sql.Tx, p Params) (int64, error) {
	return exec(ctx, tx, r.Name(), r.query,
		int(r.EventType()), warehouse.FormatTimestamp(p.ReportTime), warehouse.FormatDate(p.ReferenceDate))
}

type accountRule struct{ query string }

// NewAccountRule flags transactions on accounts whose valid_to has passed.
// The owner chain is outer-joined so a missing client still yields an event.
func NewAccountRule() Rule {
	q := fmt.Sprintf(`INSERT INTO STG_REP_FRAUD (%s)
SELECT t.trans_date, cl.passport_num, %s, cl.phone, ?, ?
FROM DWH_FACT_TRANSACTIONS t
%s
WHERE ? >= date(a.valid_to)`,
		candidateColumns, fio, ownerChain("LEFT JOIN", "t"))
	return accountRule{query: q}
}

func (accountRule) Name() string         { return "account_fraud" }
func (accountRule) EventType() EventType { return EventAccount }

func (r accountRule) Detect(ctx context.Context, tx *sql.Tx, p Params) (int64, error) {
	return exec(ctx, tx, r.Name(), r.query,
		int(r.EventType()), warehouse.FormatTimestamp(p.ReportTime), warehouse.FormatDate(p.ReferenceDate))
}

type differentCityRule struct{ query string }

// NewDifferentCityRule flags a card once when two consecutive transactions
// happen in different cities within DifferentCityWindowSeconds. The event
// time is the later transaction of the earliest such pair.
func NewDifferentCityRule() Rule {
	q := fmt.Sprintf(`WITH located AS (
    SELECT t.card_num, t.trans_id, t.trans_date, term.terminal_city AS city
    FROM DWH_FACT_TRANSACTIONS t
    JOIN DWH_DIM_TERMINALS_HIST term ON term.terminal_id = t.terminal AND %[1]s
),
travelling AS (
    SELECT card_num FROM located GROUP BY card_num HAVING COUNT(DISTINCT city) > 1
),
paired AS (
    SELECT card_num, trans_date, city,
        LEAD(trans_date) OVER w AS next_date,
        LEAD(city) OVER w AS next_city
    FROM located
    WHERE card_num IN (SELECT card_num FROM travelling)
    WINDOW w AS (PARTITION BY card_num ORDER BY trans_date, trans_id)
),
flagged AS (
    SELECT card_num, MIN(next_date) AS event_dt
    FROM paired
    WHERE next_date IS NOT NULL
      AND next_city IS NOT city
      AND strftime('%%s', next_date) - strftime('%%s', trans_date) <= %[2]d
    GROUP BY card_num
)
INSERT INTO STG_REP_FRAUD (%[3]s)
SELECT f.event_dt, cl.passport_num, %[4]s, cl.phone, ?, ?
FROM flagged f
%[5]s`,
		current("term"), DifferentCityWindowSeconds, candidateColumns, fio, ownerChain("LEFT JOIN", "f"))
	return differentCityRule{query: q}
}

func (differentCityRule) Name() string         { return "different_city" }
func (differentCityRule) EventType() EventType { return EventDifferentCity }

func (r differentCityRule) Detect(ctx context.Context, tx *sql.Tx, p Params) (int64, error) {
	return exec(ctx, tx, r.Name(), r.query, int(r.EventType()), warehouse.FormatTimestamp(p.ReportTime))
}

type structuringRule struct{ query string }

// NewStructuringRule flags a successful transaction preceded by three
// rejected ones on the same card when the four amounts strictly decrease in
// time order and the whole sequence spans at most StructuringWindowSeconds.
func NewStructuringRule() Rule {
	q := fmt.Sprintf(`WITH sequenced AS (
    SELECT card_num, trans_date, oper_result, amt,
        LAG(oper_result, 1) OVER w AS result1, LAG(amt, 1) OVER w AS amt1,
        LAG(oper_result, 2) OVER w AS result2, LAG(amt, 2) OVER w AS amt2,
        LAG(oper_result, 3) OVER w AS result3, LAG(amt, 3) OVER w AS amt3,
        LAG(trans_date, 3) OVER w AS first_date
    FROM DWH_FACT_TRANSACTIONS
    WINDOW w AS (PARTITION BY card_num ORDER BY trans_date, trans_id)
)
INSERT INTO STG_REP_FRAUD (%[1]s)
SELECT s.trans_date, cl.passport_num, %[2]s, cl.phone, ?, ?
FROM sequenced s
%[3]s
WHERE s.oper_result = '%[4]s'
  AND s.result1 = '%[5]s' AND s.result2 = '%[5]s' AND s.result3 = '%[5]s'
  AND s.amt3 > s.amt2 AND s.amt2 > s.amt1 AND s.amt1 > s.amt
  AND strftime('%%s', s.trans_date) - strftime('%%s', s.first_date) <= %[6]d`,
		candidateColumns, fio, ownerChain("LEFT JOIN", "s"), ResultSuccess, ResultReject, StructuringWindowSeconds)
	return structuringRule{query: q}
}

func (structuringRule) Name() string         { return "structuring" }
func (structuringRule) EventType() EventType { return EventStructuring }

func (r structuringRule) Detect(ctx context.Context, tx *sql.Tx, p Params) (int64, error) {
	return exec(ctx, tx, r.Name(), r.query, int(r.EventType()), warehouse.FormatTimestamp(p.ReportTime))
}
