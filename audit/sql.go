package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	// Drivers selectable by name in OpenSQLSink.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
)

const (
	insertEventQuery = `
		INSERT INTO audit_events (id, event_type, actor, resource, action, outcome, occurred_at, details)
		VALUES (:id, :event_type, :actor, :resource, :action, :outcome, :occurred_at, :details)`

	createEventsTable = `
		CREATE TABLE IF NOT EXISTS audit_events (
			id VARCHAR(64) PRIMARY KEY,
			event_type VARCHAR(32) NOT NULL,
			actor VARCHAR(255) NOT NULL,
			resource VARCHAR(255) NOT NULL,
			action VARCHAR(255) NOT NULL,
			outcome VARCHAR(32) NOT NULL,
			occurred_at TIMESTAMP NOT NULL,
			details TEXT
		)`
)

// SQLDrivers lists the driver names OpenSQLSink accepts.
var SQLDrivers = []string{"postgres", "pgx", "mysql"}

// SQLSink inserts events into an audit_events table.
type SQLSink struct {
	db    *sqlx.DB
	owned bool
}

type eventRow struct {
	ID         string    `db:"id"`
	Type       string    `db:"event_type"`
	Actor      string    `db:"actor"`
	Resource   string    `db:"resource"`
	Action     string    `db:"action"`
	Outcome    string    `db:"outcome"`
	OccurredAt time.Time `db:"occurred_at"`
	Details    *string   `db:"details"`
}

// NewSQLSink creates a sink over an existing connection pool.
func NewSQLSink(db *sqlx.DB) (*SQLSink, error) {
	if db == nil {
		return nil, ErrNilSink
	}
	return &SQLSink{db: db}, nil
}

// OpenSQLSink connects with driver ("postgres", "pgx" or "mysql") and dsn.
// The returned sink closes the pool on Close.
func OpenSQLSink(ctx context.Context, driver, dsn string) (*SQLSink, error) {
	switch driver {
	case "postgres", "pgx", "mysql":
	default:
		return nil, fmt.Errorf("%w: sql driver %q", ErrUnknownSink, driver)
	}
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: connect %s: %w", driver, err)
	}
	return &SQLSink{db: db, owned: true}, nil
}

// EnsureSchema creates the audit_events table when it does not exist.
func (s *SQLSink) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, createEventsTable)
	return err
}

func (s *SQLSink) Write(ctx context.Context, ev Event) error {
	row, err := rowFor(ev)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, insertEventQuery, row)
	return err
}

func (s *SQLSink) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

func rowFor(ev Event) (eventRow, error) {
	row := eventRow{
		ID:         ev.ID,
		Type:       string(ev.Type),
		Actor:      ev.Actor,
		Resource:   ev.Resource,
		Action:     ev.Action,
		Outcome:    ev.Outcome,
		OccurredAt: ev.Timestamp.UTC(),
	}
	if len(ev.Details) > 0 {
		b, err := json.Marshal(ev.Details)
		if err != nil {
			return eventRow{}, err
		}
		details := string(b)
		row.Details = &details
	}
	return row, nil
}
