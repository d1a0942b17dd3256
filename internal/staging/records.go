package staging

import (
	"time"

	"github.com/shopspring/decimal"
)

// Terminal is one row of the terminals extract.
type Terminal struct {
	ID      string
	Type    string
	City    string
	Address string
}

// Transaction is one row of the transactions extract.
type Transaction struct {
	ID         string
	Date       time.Time
	Amount     decimal.Decimal
	CardNum    string
	OperType   string
	OperResult string
	Terminal   string
}

// BlacklistEntry is one row of the passport blacklist extract.
type BlacklistEntry struct {
	Passport  string
	EntryDate time.Time
}
