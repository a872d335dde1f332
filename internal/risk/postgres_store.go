package risk

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore persists assessment records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed assessment audit store.
// Schema is managed by migrations (see migrations/002_risk_assessments.sql).
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Record(ctx context.Context, rec *Record) error {
	factorsJSON, err := json.Marshal(rec.Assessment.RiskFactors)
	if err != nil {
		return fmt.Errorf("failed to marshal risk factors: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk_assessments
			(id, transaction_id, source, risk_score, risk_level, risk_factors,
			 is_likely_fraud, recommended_action, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		rec.ID,
		rec.TransactionID,
		rec.Source,
		rec.Assessment.RiskScore,
		string(rec.Assessment.RiskLevel),
		factorsJSON,
		rec.Assessment.IsLikelyFraud,
		string(rec.Assessment.RecommendedAction),
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record risk assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByTransaction(ctx context.Context, transactionID string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, source, risk_score, risk_level, risk_factors,
		       is_likely_fraud, recommended_action, created_at
		FROM risk_assessments
		WHERE transaction_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, transactionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list risk assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Record
	for rows.Next() {
		var r Record
		var factorsJSON []byte
		if err := rows.Scan(
			&r.ID, &r.TransactionID, &r.Source,
			&r.Assessment.RiskScore, &r.Assessment.RiskLevel, &factorsJSON,
			&r.Assessment.IsLikelyFraud, &r.Assessment.RecommendedAction, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan risk assessment: %w", err)
		}
		_ = json.Unmarshal(factorsJSON, &r.Assessment.RiskFactors)
		result = append(result, &r)
	}
	return result, rows.Err()
}
