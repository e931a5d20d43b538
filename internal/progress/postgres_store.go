package progress

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PostgresStore persists progress in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgreSQL-backed progress store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the user_progress table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS user_progress (
			address               VARCHAR(42) PRIMARY KEY,
			xp                    NUMERIC(20,0) NOT NULL DEFAULT 0,
			level                 INTEGER NOT NULL DEFAULT 1 CHECK (level BETWEEN 1 AND 100),
			transactions_analyzed NUMERIC(20,0) NOT NULL DEFAULT 0,
			achievements          JSONB NOT NULL DEFAULT '[]',
			last_update           TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_user_progress_level ON user_progress (level DESC);
	`)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, address string) (*UserProgress, error) {
	p := &UserProgress{}
	var achievements []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT address, xp, level, transactions_analyzed, achievements, last_update
		FROM user_progress WHERE address = $1
	`, strings.ToLower(address)).Scan(
		&p.Address, &p.XP, &p.Level, &p.TransactionsAnalyzed, &achievements, &p.LastUpdate,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProgressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}
	if err := json.Unmarshal(achievements, &p.Achievements); err != nil {
		return nil, fmt.Errorf("failed to decode achievements: %w", err)
	}
	if p.Achievements == nil {
		p.Achievements = []Unlocked{}
	}
	return p, nil
}

func (s *PostgresStore) Put(ctx context.Context, p *UserProgress) error {
	achievements := p.Achievements
	if achievements == nil {
		achievements = []Unlocked{}
	}
	raw, err := json.Marshal(achievements)
	if err != nil {
		return fmt.Errorf("failed to encode achievements: %w", err)
	}

	// uint64 values above MaxInt64 are rejected by database/sql, so the
	// counters travel as text and are cast by Postgres.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_progress (address, xp, level, transactions_analyzed, achievements, last_update)
		VALUES ($1, $2::numeric, $3, $4::numeric, $5, $6)
		ON CONFLICT (address) DO UPDATE SET
			xp = EXCLUDED.xp,
			level = EXCLUDED.level,
			transactions_analyzed = EXCLUDED.transactions_analyzed,
			achievements = EXCLUDED.achievements,
			last_update = EXCLUDED.last_update
	`,
		strings.ToLower(p.Address),
		strconv.FormatUint(p.XP, 10),
		p.Level,
		strconv.FormatUint(p.TransactionsAnalyzed, 10),
		raw,
		p.LastUpdate,
	)
	if err != nil {
		return fmt.Errorf("failed to put progress: %w", err)
	}
	return nil
}
