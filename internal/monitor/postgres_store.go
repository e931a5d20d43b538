package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// PostgresStore persists session snapshots in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ SessionStore = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgreSQL-backed session store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the monitor_sessions table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS monitor_sessions (
			address            VARCHAR(42) PRIMARY KEY,
			last_checked_block NUMERIC(20,0) NOT NULL DEFAULT 0,
			is_active          BOOLEAN NOT NULL DEFAULT TRUE,
			last_update        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_monitor_sessions_inactive
			ON monitor_sessions (last_update) WHERE NOT is_active;
	`)
	return err
}

func (s *PostgresStore) Save(ctx context.Context, snap Snapshot) error {
	// The watermark never moves backwards, even if saves land out of order.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monitor_sessions (address, last_checked_block, is_active, last_update)
		VALUES ($1, $2::numeric, $3, $4)
		ON CONFLICT (address) DO UPDATE SET
			last_checked_block = GREATEST(monitor_sessions.last_checked_block, EXCLUDED.last_checked_block),
			is_active = EXCLUDED.is_active,
			last_update = EXCLUDED.last_update
	`,
		strings.ToLower(snap.Address),
		strconv.FormatUint(snap.LastCheckedBlock, 10),
		snap.IsActive,
		snap.LastUpdate,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, address string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM monitor_sessions WHERE address = $1`, strings.ToLower(address))
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, last_checked_block, is_active, last_update
		FROM monitor_sessions
		ORDER BY address
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []Snapshot
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.Address, &snap.LastCheckedBlock, &snap.IsActive, &snap.LastUpdate); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		result = append(result, snap)
	}
	return result, rows.Err()
}
