package fraud

import (
	"context"
	"fmt"

	"frauddwh/internal/warehouse"
)

// ListReport returns every REP_FRAUD row ordered by event time and type.
func ListReport(ctx context.Context, q warehouse.Querier) ([]Event, error) {
	rows, err := q.QueryContext(ctx, `SELECT event_dt, passport, fio, phone, event_type, report_dt
FROM REP_FRAUD ORDER BY event_dt, event_type, passport`)
	if err != nil {
		return nil, fmt.Errorf("select report: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Event
	for rows.Next() {
		var (
			ev                Event
			eventDT, reportDT string
			eventType         int
		)
		if err := rows.Scan(&eventDT, &ev.Passport, &ev.FIO, &ev.Phone, &eventType, &reportDT); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		if ev.EventDT, err = warehouse.ParseTimestamp(eventDT); err != nil {
			return nil, err
		}
		if ev.ReportDT, err = warehouse.ParseTimestamp(reportDT); err != nil {
			return nil, err
		}
		ev.EventType = EventType(eventType)
		out = append(out, ev)
	}
	return out, rows.Err()
}
