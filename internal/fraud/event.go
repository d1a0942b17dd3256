// Package fraud detects suspicious activity over current dimension history
// and facts, and publishes deduplicated events into REP_FRAUD.
package fraud

import (
	"database/sql"
	"fmt"
	"time"
)

// EventType enumerates the fraud patterns stored in event_type.
type EventType int

const (
	EventPassport      EventType = 1 // expired or blacklisted passport
	EventAccount       EventType = 2 // expired account
	EventDifferentCity EventType = 3 // transactions in two cities within an hour
	EventStructuring   EventType = 4 // rejections followed by a smaller successful amount
)

func (t EventType) String() string {
	switch t {
	case EventPassport:
		return "passport"
	case EventAccount:
		return "account"
	case EventDifferentCity:
		return "different_city"
	case EventStructuring:
		return "structuring"
	default:
		return fmt.Sprintf("event_type(%d)", int(t))
	}
}

// Operation results recorded on transactions.
const (
	ResultSuccess = "SUCCESS"
	ResultReject  = "REJECT"
)

// Event is one row of REP_FRAUD.
type Event struct {
	EventDT   time.Time
	Passport  sql.NullString
	FIO       sql.NullString
	Phone     sql.NullString
	EventType EventType
	ReportDT  time.Time
}

// Params carries the per-run inputs shared by every rule.
type Params struct {
	// ReferenceDate is the batch date validity columns are compared with.
	ReferenceDate time.Time
	// ReportTime is stamped into report_dt of every candidate.
	ReportTime time.Time
}
