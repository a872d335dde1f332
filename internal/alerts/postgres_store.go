package alerts

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore persists alerts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed alert store.
// Schema is managed by migrations (see migrations/003_security_alerts.sql).
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, a *SecurityAlert) error {
	detailsJSON, err := json.Marshal(a.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal alert details: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO security_alerts
			(id, user_id, alert_type, title, message, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		a.ID,
		a.UserID,
		string(a.Type),
		a.Title,
		a.Message,
		detailsJSON,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*SecurityAlert, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, alert_type, title, message, details, created_at
		FROM security_alerts
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*SecurityAlert
	for rows.Next() {
		var a SecurityAlert
		var detailsJSON []byte
		if err := rows.Scan(
			&a.ID, &a.UserID, &a.Type, &a.Title, &a.Message, &detailsJSON, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		_ = json.Unmarshal(detailsJSON, &a.Details)
		result = append(result, &a)
	}
	return result, rows.Err()
}
