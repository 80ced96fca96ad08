package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"reward_engine/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TransactionRepository is the coin journal. Every balance credit writes one row.
type TransactionRepository struct {
	db *pgxpool.Pool
}

func NewTransactionRepository(db *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// GetByUserID returns recent journal entries for a user
func (r *TransactionRepository) GetByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, type, amount, meta, created_at
		 FROM coin_transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list coin transactions: %w", translate(err))
	}
	defer rows.Close()

	var result []*domain.Transaction
	for rows.Next() {
		var (
			t        domain.Transaction
			metaJSON []byte
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &metaJSON, &t.CreatedAt); err != nil {
			return nil, err
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &t.Meta)
		}
		result = append(result, &t)
	}
	return result, rows.Err()
}

// SumByType totals the journal for one user and entry type.
func (r *TransactionRepository) SumByType(ctx context.Context, userID uuid.UUID, txType string) (int64, error) {
	var total int64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM coin_transactions WHERE user_id = $1 AND type = $2`,
		userID, txType,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum coin transactions: %w", translate(err))
	}
	return total, nil
}

// CreateWithTx inserts a journal entry using an existing database transaction
func (r *TransactionRepository) CreateWithTx(ctx context.Context, dbTx pgx.Tx, t *domain.Transaction) error {
	metaJSON, err := json.Marshal(t.Meta)
	if err != nil || t.Meta == nil {
		metaJSON = []byte("{}")
	}

	err = dbTx.QueryRow(ctx,
		`INSERT INTO coin_transactions (user_id, type, amount, meta)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		t.UserID, t.Type, t.Amount, metaJSON,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert coin transaction: %w", translate(err))
	}
	return nil
}
