package explanations

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mbd888/txbuddy/internal/pagination"
)

// PostgresStore persists explanation records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgreSQL-backed explanation store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the explanations table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS explanations (
			id             VARCHAR(40) PRIMARY KEY,
			tx_hash        VARCHAR(66) NOT NULL,
			address        VARCHAR(42) NOT NULL DEFAULT '',
			user_level     INTEGER NOT NULL CHECK (user_level BETWEEN 1 AND 100),
			explanation    TEXT NOT NULL,
			risk_level     VARCHAR(10) NOT NULL,
			risk_reason    TEXT NOT NULL DEFAULT '',
			recommendation TEXT NOT NULL DEFAULT '',
			complexity     INTEGER NOT NULL DEFAULT 0,
			tx_type        VARCHAR(32) NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_explanations_tx ON explanations (tx_hash, user_level);
		CREATE INDEX IF NOT EXISTS idx_explanations_address ON explanations (address, created_at DESC, id DESC);
	`)
	return err
}

const selectColumns = `id, tx_hash, address, user_level, explanation, risk_level, risk_reason,
	recommendation, complexity, tx_type, created_at`

func (s *PostgresStore) Append(ctx context.Context, r *Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO explanations (`+selectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		r.ID,
		strings.ToLower(r.TxHash),
		strings.ToLower(r.Address),
		r.UserLevel,
		r.Explanation,
		string(r.Risk.Level),
		r.Risk.Reason,
		r.Risk.Recommendation,
		r.Complexity,
		r.Type,
		r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append explanation: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByTx(ctx context.Context, txHash string, f Filter) ([]*Record, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM explanations
		WHERE tx_hash = $1 AND ($2 = 0 OR user_level = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, strings.ToLower(txHash), f.UserLevel, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list explanations: %w", err)
	}
	return scanRecords(rows)
}

func (s *PostgresStore) ListByAddress(ctx context.Context, address string, limit int, before *pagination.Cursor) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}
	var (
		rows *sql.Rows
		err  error
	)
	if before == nil {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+selectColumns+`
			FROM explanations
			WHERE address = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`, strings.ToLower(address), limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+selectColumns+`
			FROM explanations
			WHERE address = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4
		`, strings.ToLower(address), before.CreatedAt, before.ID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list explanations: %w", err)
	}
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	defer func() { _ = rows.Close() }()

	result := []*Record{}
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.TxHash, &r.Address, &r.UserLevel, &r.Explanation,
			&r.Risk.Level, &r.Risk.Reason, &r.Risk.Recommendation, &r.Complexity, &r.Type, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan explanation: %w", err)
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}
