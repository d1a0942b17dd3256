// Package scd maintains slowly changing dimensions: SCD1 overwrite merges
// into DWH_DIM_* and SCD2 versioned history in DWH_DIM_*_HIST.
package scd

import (
	"fmt"
	"strings"

	"frauddwh/internal/warehouse"
)

// Entity describes one dimension and the relations it flows through.
type Entity struct {
	Name         string
	Key          string
	Attributes   []string // tracked business attributes
	AuditColumns []string // carried by SCD1 only
	Staging      string
	Dimension    string // SCD1 table; empty when the entity has none
	History      string
}

// HasSCD1 reports whether the entity keeps an overwrite dimension.
func (e Entity) HasSCD1() bool { return e.Dimension != "" }

// CurrentSource is the relation historization compares against. The SCD1
// dimension is never pruned, so only entities without one (terminals) can
// receive tombstones.
func (e Entity) CurrentSource() string {
	if e.HasSCD1() {
		return e.Dimension
	}
	return e.Staging
}

// Columns returns the key followed by the tracked attributes.
func (e Entity) Columns() []string {
	return append([]string{e.Key}, e.Attributes...)
}

func (e Entity) scd1Columns() []string {
	return append(e.Columns(), e.AuditColumns...)
}

func (e Entity) classification(kind string) string {
	return fmt.Sprintf("STG_%s_ROWS_%s", kind, strings.ToUpper(e.Name))
}

// NewRowsTable names the relation holding keys absent from current history.
func (e Entity) NewRowsTable() string { return e.classification("NEW") }

// ChangedRowsTable names the relation holding keys whose attributes changed.
func (e Entity) ChangedRowsTable() string { return e.classification("CHANGED") }

// DeletedRowsTable names the relation holding keys gone from the source.
func (e Entity) DeletedRowsTable() string { return e.classification("DELETED") }

// Validate rejects descriptors that would produce malformed SQL.
func (e Entity) Validate() error {
	if e.Name == "" || e.Key == "" || e.Staging == "" || e.History == "" {
		return fmt.Errorf("entity %q: name, key, staging and history are required", e.Name)
	}
	if len(e.Attributes) == 0 {
		return fmt.Errorf("entity %q: no tracked attributes", e.Name)
	}
	idents := append(e.scd1Columns(), e.Staging, e.History)
	if e.Dimension != "" {
		idents = append(idents, e.Dimension)
	}
	for _, id := range idents {
		if err := warehouse.ValidateIdent(id); err != nil {
			return fmt.Errorf("entity %q: %w", e.Name, err)
		}
	}
	return nil
}

var auditColumns = []string{"create_dt", "update_dt"}

// Built-in dimensions.
var (
	Cards = Entity{
		Name:         "cards",
		Key:          "card_num",
		Attributes:   []string{"account_num"},
		AuditColumns: auditColumns,
		Staging:      "STG_CARDS",
		Dimension:    "DWH_DIM_CARDS",
		History:      "DWH_DIM_CARDS_HIST",
	}
	Accounts = Entity{
		Name:         "accounts",
		Key:          "account_num",
		Attributes:   []string{"valid_to", "client"},
		AuditColumns: auditColumns,
		Staging:      "STG_ACCOUNTS",
		Dimension:    "DWH_DIM_ACCOUNTS",
		History:      "DWH_DIM_ACCOUNTS_HIST",
	}
	Clients = Entity{
		Name: "clients",
		Key:  "client_id",
		Attributes: []string{
			"last_name", "first_name", "patronymic", "date_of_birth",
			"passport_num", "passport_valid_to", "phone",
		},
		AuditColumns: auditColumns,
		Staging:      "STG_CLIENTS",
		Dimension:    "DWH_DIM_CLIENTS",
		History:      "DWH_DIM_CLIENTS_HIST",
	}
	Terminals = Entity{
		Name:       "terminals",
		Key:        "terminal_id",
		Attributes: []string{"terminal_type", "terminal_city", "terminal_address"},
		Staging:    "STG_TERMINALS",
		History:    "DWH_DIM_TERMINALS_HIST",
	}
)

// Entities returns every built-in dimension.
func Entities() []Entity {
	return []Entity{Cards, Accounts, Clients, Terminals}
}

func prefixed(alias string, cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + c
	}
	return strings.Join(out, ", ")
}

// differs renders a NULL-safe "any column differs" predicate.
func differs(left, right string, cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("%s.%s IS NOT %s.%s", left, c, right, c)
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}
