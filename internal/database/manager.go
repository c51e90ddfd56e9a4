// Package database keeps the broadcast audit log in sqlite.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	// ARCHITECTURAL DISCOVERY: Import SQLite driver but only reference in connection string
	_ "github.com/mattn/go-sqlite3"

	"notifier/internal/config"
	"notifier/internal/logging"
	"notifier/pkg/types"
)

// History limits for RecentBroadcasts
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// Manager records broadcasts and serves the recent history
type Manager struct {
	db           *sqlx.DB
	timeout      time.Duration
	retryDelay   time.Duration
	logger       *logging.Logger
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sqlx.DB) error
	result    chan error
}

type broadcastRow struct {
	ID        string         `db:"id"`
	Group     string         `db:"group_name"`
	Channel   string         `db:"channel"`
	Payload   sql.NullString `db:"payload"`
	CreatedAt time.Time      `db:"created_at"`
}

// NewManager opens the database, creates the schema and starts the writer
func NewManager(cfg config.DatabaseConfig, logger *logging.Logger) (*Manager, error) {
	db, err := sqlx.Open("sqlite3", cfg.Path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// TECHNICAL DISCOVERY: Every connection to :memory: is a separate database
	if cfg.Path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := migrate(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	m := &Manager{
		db:           db,
		timeout:      timeout,
		retryDelay:   time.Second,
		logger:       logging.OrNop(logger).Named("database"),
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	m.wg.Add(1)
	go m.writeLoop()
	return m, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			// FUNCTIONAL DISCOVERY: A failed write is retried exactly once
			err := op.operation(m.db)
			if err != nil {
				m.logger.Warn("database write failed, retrying", logging.Fields{"error": err, "delay": m.retryDelay})
				time.Sleep(m.retryDelay)
				if err = op.operation(m.db); err != nil {
					m.logger.Error("database write failed after retry", logging.Fields{"error": err})
				}
			}
			op.result <- err
		case <-m.shutdown:
			return
		}
	}
}

func (m *Manager) executeWrite(ctx context.Context, operation func(*sqlx.DB) error) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	result := make(chan error, 1)
	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-timer.C:
		return ErrWriteTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return ErrClosed
	}

	select {
	case err := <-result:
		return err
	case <-m.shutdown:
		return ErrClosed
	}
}

// RecordBroadcast appends a broadcast to the audit log
func (m *Manager) RecordBroadcast(ctx context.Context, b *types.Broadcast) error {
	row := broadcastRow{
		ID:        b.ID,
		Group:     b.Group,
		Channel:   b.Channel,
		CreatedAt: b.CreatedAt.UTC(),
	}
	if b.Payload != nil {
		data, err := json.Marshal(b.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		row.Payload = sql.NullString{String: string(data), Valid: true}
	}

	return m.executeWrite(ctx, func(db *sqlx.DB) error {
		_, err := db.NamedExecContext(ctx, `
			INSERT INTO broadcasts (id, group_name, channel, payload, created_at)
			VALUES (:id, :group_name, :channel, :payload, :created_at)`, row)
		if err != nil {
			return fmt.Errorf("failed to insert broadcast: %w", err)
		}
		return nil
	})
}

// RecentBroadcasts returns the newest broadcasts first; an empty group means all groups
func (m *Manager) RecentBroadcasts(ctx context.Context, group string, limit int) ([]*types.Broadcast, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	// ARCHITECTURAL DISCOVERY: Read operations can be concurrent - no need for writeChannel
	query := `SELECT id, group_name, channel, payload, created_at FROM broadcasts`
	args := []interface{}{}
	if group != "" {
		query += ` WHERE group_name = ?`
		args = append(args, group)
	}
	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	var rows []broadcastRow
	if err := m.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query broadcasts: %w", err)
	}

	out := make([]*types.Broadcast, 0, len(rows))
	for _, row := range rows {
		b := &types.Broadcast{
			ID:        row.ID,
			Group:     row.Group,
			Channel:   row.Channel,
			CreatedAt: row.CreatedAt,
		}
		if row.Payload.Valid {
			if err := json.Unmarshal([]byte(row.Payload.String), &b.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload of %s: %w", row.ID, err)
			}
		}
		out = append(out, b)
	}
	return out, nil
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var n int
	if err := m.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM broadcasts LIMIT 1`); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close stops the writer and closes the database
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
