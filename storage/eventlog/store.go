package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"escrowchain/core/types"
)

// Store is an append-only SQLite journal of committed events.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Record is a single journalled event.
type Record struct {
	Sequence   int64             `json:"sequence"`
	Height     uint64            `json:"height"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Type    string
	Account string
	After   int64
	Limit   int
}

const defaultListLimit = 100

// Open creates or opens the journal at path. Use ":memory:" for an
// ephemeral journal.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)
	store := &Store{db: db, now: time.Now}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS events (
            sequence INTEGER PRIMARY KEY AUTOINCREMENT,
            height INTEGER NOT NULL,
            type TEXT NOT NULL,
            payer TEXT,
            recipient TEXT,
            payload TEXT NOT NULL,
            created_at TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS events_type ON events(type);`,
		`CREATE INDEX IF NOT EXISTS events_payer ON events(payer);`,
		`CREATE INDEX IF NOT EXISTS events_recipient ON events(recipient);`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Append journals the events of one committed unit in a single transaction.
func (s *Store) Append(ctx context.Context, height uint64, evts []types.Event) error {
	if len(evts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const stmt = `INSERT INTO events(height, type, payer, recipient, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	createdAt := s.now().UTC()
	for _, evt := range evts {
		payload, err := json.Marshal(evt.Attributes)
		if err != nil {
			return fmt.Errorf("eventlog: encode %s: %w", evt.Type, err)
		}
		if _, err := tx.ExecContext(ctx, stmt, int64(height), evt.Type,
			nullable(evt.Attr("from")), nullable(evt.Attr("to")), string(payload), createdAt); err != nil {
			return fmt.Errorf("eventlog: insert %s: %w", evt.Type, err)
		}
	}
	return tx.Commit()
}

// List returns journalled events in sequence order.
func (s *Store) List(ctx context.Context, filter Filter) ([]Record, error) {
	var (
		clauses = []string{"sequence > ?"}
		args    = []interface{}{filter.After}
	)
	if filter.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.Account != "" {
		clauses = append(clauses, "(payer = ? OR recipient = ?)")
		args = append(args, filter.Account, filter.Account)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	query := `SELECT sequence, height, type, payload, created_at FROM events WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY sequence ASC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var (
			rec     Record
			height  int64
			payload string
		)
		if err := rows.Scan(&rec.Sequence, &height, &rec.Type, &payload, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Height = uint64(height)
		if err := json.Unmarshal([]byte(payload), &rec.Attributes); err != nil {
			return nil, fmt.Errorf("eventlog: decode %d: %w", rec.Sequence, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// LastSequence returns the highest journalled sequence, or zero when empty.
func (s *Store) LastSequence(ctx context.Context) (int64, error) {
	row := s.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM events`)
	var value sql.NullInt64
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return value.Int64, nil
}

func nullable(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
