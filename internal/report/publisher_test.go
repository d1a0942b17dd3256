package report

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"frauddwh/internal/fraud"
)

// stubConn emulates the unique constraint of rep_fraud.
type stubConn struct {
	mu       sync.Mutex
	execs    []string
	rows     map[string]struct{}
	failExec bool
}

type stubDriver struct{ conn *stubConn }

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }
func (c *stubConn) Close() error                        { return nil }
func (c *stubConn) Begin() (driver.Tx, error)           { return c, nil }
func (c *stubConn) Commit() error                       { return nil }
func (c *stubConn) Rollback() error                     { return nil }
func (c *stubConn) Ping(context.Context) error          { return nil }

func (c *stubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) { return c, nil }

func (c *stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execs = append(c.execs, query)
	if c.failExec && strings.HasPrefix(query, "INSERT") {
		return nil, fmt.Errorf("exec fail")
	}
	if !strings.HasPrefix(query, "INSERT") {
		return driver.RowsAffected(0), nil
	}
	key := make([]string, 0, 5)
	for _, a := range args[:5] {
		key = append(key, fmt.Sprint(a.Value))
	}
	k := strings.Join(key, "|")
	if _, ok := c.rows[k]; ok {
		return driver.RowsAffected(0), nil
	}
	c.rows[k] = struct{}{}
	return driver.RowsAffected(1), nil
}

func openStub(t *testing.T) (*Publisher, *stubConn) {
	t.Helper()
	conn := &stubConn{rows: make(map[string]struct{})}
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	orig := sqlOpen
	sqlOpen = func(_, dsn string) (*sql.DB, error) { return sql.Open(name, dsn) }
	t.Cleanup(func() { sqlOpen = orig })

	p, err := Open(context.Background(), "postgres://stub", zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p, conn
}

func sampleEvents() []fraud.Event {
	at := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	return []fraud.Event{
		{EventDT: at, Passport: sql.NullString{String: "1234 567890", Valid: true}, EventType: fraud.EventPassport, ReportDT: at},
		{EventDT: at.Add(time.Minute), EventType: fraud.EventDifferentCity, ReportDT: at},
	}
}

func TestOpenEnsuresTable(t *testing.T) {
	_, conn := openStub(t)
	if len(conn.execs) == 0 || !strings.Contains(conn.execs[0], "CREATE TABLE IF NOT EXISTS rep_fraud") {
		t.Fatalf("expected ddl first, got %v", conn.execs)
	}
}

func TestPublishSkipsExistingEvents(t *testing.T) {
	p, _ := openStub(t)
	ctx := context.Background()
	n, err := p.Publish(ctx, sampleEvents())
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if n != 2 {
		t.Fatalf("inserted = %d, want 2", n)
	}
	n, err = p.Publish(ctx, sampleEvents())
	if err != nil {
		t.Fatalf("republish: %v", err)
	}
	if n != 0 {
		t.Fatalf("republish inserted %d, want 0", n)
	}
	if n, _ := p.Publish(ctx, nil); n != 0 {
		t.Fatalf("empty publish inserted %d", n)
	}
}

func TestPublishFailureIsReported(t *testing.T) {
	p, conn := openStub(t)
	conn.failExec = true
	if _, err := p.Publish(context.Background(), sampleEvents()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), "", nil); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func TestPublishPostgres(t *testing.T) {
	dsn := os.Getenv("FRAUDDWH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skipf("FRAUDDWH_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	p, err := Open(ctx, dsn, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = p.Close() }()
	if _, err := p.Publish(ctx, sampleEvents()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	n, err := p.Publish(ctx, sampleEvents())
	if err != nil {
		t.Fatalf("republish: %v", err)
	}
	if n != 0 {
		t.Fatalf("republish inserted %d, want 0", n)
	}
}
