package identity

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists verification attempts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed attempt store.
// Schema is managed by migrations (see migrations/004_verification_attempts.sql).
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, a *VerificationAttempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verification_attempts
			(id, transaction_id, method, verified, confidence_score, failure_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		a.ID,
		a.TransactionID,
		string(a.Method),
		a.Verified,
		a.ConfidenceScore,
		nullString(a.FailureReason),
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record verification attempt: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByTransaction(ctx context.Context, transactionID string) ([]*VerificationAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, method, verified, confidence_score, failure_reason, created_at
		FROM verification_attempts
		WHERE transaction_id = $1
		ORDER BY created_at ASC
	`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list verification attempts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*VerificationAttempt
	for rows.Next() {
		var a VerificationAttempt
		var reason sql.NullString
		if err := rows.Scan(
			&a.ID, &a.TransactionID, &a.Method, &a.Verified,
			&a.ConfidenceScore, &reason, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan verification attempt: %w", err)
		}
		a.FailureReason = reason.String
		result = append(result, &a)
	}
	return result, rows.Err()
}

func (s *PostgresStore) CountByTransaction(ctx context.Context, transactionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM verification_attempts WHERE transaction_id = $1
	`, transactionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count verification attempts: %w", err)
	}
	return count, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
