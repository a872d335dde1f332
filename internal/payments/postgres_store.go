package payments

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/wkarimi/nyumbapay/internal/pagination"
	"github.com/wkarimi/nyumbapay/internal/risk"
)

// PostgresStore persists transactions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed transaction store.
// Schema is managed by migrations (see migrations/001_transactions.sql).
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const txColumns = `
	id, user_id, property_id, amount_cents, currency, tx_type, method,
	provider, reference, description, receipt_url, state, risk_level,
	risk_factors, failure_reason, tx_date, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, tx *Transaction) error {
	factorsJSON, err := json.Marshal(tx.RiskFactors)
	if err != nil {
		return fmt.Errorf("failed to marshal risk factors: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transactions (`+txColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		tx.ID, tx.UserID, nullString(tx.PropertyID), tx.AmountCents, tx.Currency,
		string(tx.Type), string(tx.Method), tx.Provider, tx.Reference,
		tx.Description, nullString(tx.ReceiptURL), string(tx.State),
		nullString(string(tx.RiskLevel)), factorsJSON, nullString(tx.FailureReason),
		tx.Date, tx.CreatedAt, tx.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation on reference
			return ErrReferenceExists
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+txColumns+` FROM transactions WHERE id = $1
	`, id)
	return scanTransaction(row)
}

func (s *PostgresStore) Load(ctx context.Context, reference string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+txColumns+` FROM transactions WHERE reference = $1
	`, reference)
	return scanTransaction(row)
}

// CompareAndSwapStatus writes tx only if the stored state still matches
// from. RowsAffected 0 with an existing row means another writer got there
// first.
func (s *PostgresStore) CompareAndSwapStatus(ctx context.Context, tx *Transaction, from State) error {
	factorsJSON, err := json.Marshal(tx.RiskFactors)
	if err != nil {
		return fmt.Errorf("failed to marshal risk factors: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET state = $1, risk_level = $2, risk_factors = $3, failure_reason = $4,
		    receipt_url = $5, updated_at = $6
		WHERE id = $7 AND state = $8
	`,
		string(tx.State), nullString(string(tx.RiskLevel)), factorsJSON,
		nullString(tx.FailureReason), nullString(tx.ReceiptURL), tx.UpdatedAt,
		tx.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		if _, getErr := s.Get(ctx, tx.ID); getErr != nil {
			return getErr
		}
		return ErrStatusConflict
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int, after *pagination.Cursor) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + txColumns + ` FROM transactions
		WHERE user_id = $1`
	args := []any{userID}
	if after != nil {
		query += ` AND (created_at, id) < ($2, $3)`
		args = append(args, after.CreatedAt, after.ID)
	}
	query += fmt.Sprintf(`
		ORDER BY created_at DESC, id DESC
		LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	var (
		tx                                               Transaction
		propertyID, receiptURL, riskLevel, failureReason sql.NullString
		factorsJSON                                      []byte
	)
	err := row.Scan(
		&tx.ID, &tx.UserID, &propertyID, &tx.AmountCents, &tx.Currency,
		&tx.Type, &tx.Method, &tx.Provider, &tx.Reference,
		&tx.Description, &receiptURL, &tx.State, &riskLevel,
		&factorsJSON, &failureReason, &tx.Date, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	tx.PropertyID = propertyID.String
	tx.ReceiptURL = receiptURL.String
	tx.RiskLevel = risk.Level(riskLevel.String)
	tx.FailureReason = failureReason.String
	_ = json.Unmarshal(factorsJSON, &tx.RiskFactors)
	return &tx, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
