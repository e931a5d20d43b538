package risk

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// PostgresStore persists risk assessments in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgreSQL-backed risk assessment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the risk_assessments table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS risk_assessments (
			id             VARCHAR(40) PRIMARY KEY,
			tx_hash        VARCHAR(66) NOT NULL,
			address        VARCHAR(42) NOT NULL DEFAULT '',
			risk_level     VARCHAR(10) NOT NULL CHECK (risk_level IN ('safe', 'warning', 'danger')),
			reason         TEXT NOT NULL,
			recommendation TEXT NOT NULL,
			rule           VARCHAR(32) NOT NULL,
			facts          JSONB,
			evaluated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_risk_assessments_tx
			ON risk_assessments (tx_hash, evaluated_at DESC);

		CREATE INDEX IF NOT EXISTS idx_risk_assessments_danger
			ON risk_assessments (evaluated_at DESC) WHERE risk_level = 'danger';
	`)
	return err
}

func (s *PostgresStore) Record(ctx context.Context, a *Assessment) error {
	var facts []byte
	if a.Facts != nil {
		var err error
		if facts, err = json.Marshal(a.Facts); err != nil {
			return fmt.Errorf("failed to marshal facts: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_assessments (id, tx_hash, address, risk_level, reason, recommendation, rule, facts, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		a.ID,
		strings.ToLower(a.TxHash),
		a.Address,
		string(a.Verdict.Level),
		a.Verdict.Reason,
		a.Verdict.Recommendation,
		a.Rule,
		facts,
		a.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record risk assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByTx(ctx context.Context, txHash string, limit int) ([]*Assessment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tx_hash, address, risk_level, reason, recommendation, rule, facts, evaluated_at
		FROM risk_assessments
		WHERE tx_hash = $1
		ORDER BY evaluated_at DESC
		LIMIT $2
	`, strings.ToLower(txHash), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list risk assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Assessment
	for rows.Next() {
		var a Assessment
		var facts []byte
		if err := rows.Scan(&a.ID, &a.TxHash, &a.Address, &a.Verdict.Level, &a.Verdict.Reason,
			&a.Verdict.Recommendation, &a.Rule, &facts, &a.EvaluatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan risk assessment: %w", err)
		}
		if len(facts) > 0 {
			var f Facts
			if err := json.Unmarshal(facts, &f); err == nil {
				a.Facts = &f
			}
		}
		result = append(result, &a)
	}
	return result, rows.Err()
}
