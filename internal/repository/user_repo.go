package repository

import (
	"context"
	"errors"
	"fmt"

	"reward_engine/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository reads the user records the engine hangs off and owns their
// coin balance and zone directory.
type UserRepository struct {
	db      *pgxpool.Pool
	journal *TransactionRepository
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db, journal: NewTransactionRepository(db)}
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}

	err := r.db.QueryRow(ctx,
		`INSERT INTO users (id, email, name, timezone)
		 VALUES ($1, $2, $3, $4)
		 RETURNING coins, created_at`,
		u.ID, u.Email, u.Name, u.Timezone,
	).Scan(&u.Coins, &u.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", translate(err))
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRow(ctx,
		`SELECT id, email, COALESCE(name, ''), coins, timezone, created_at
		 FROM users
		 WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.Coins, &u.Timezone, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", translate(err))
	}
	return &u, nil
}

// GetCoins returns user's coins balance
func (r *UserRepository) GetCoins(ctx context.Context, userID uuid.UUID) (int64, error) {
	var coins int64
	err := r.db.QueryRow(ctx, `SELECT coins FROM users WHERE id = $1`, userID).Scan(&coins)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get coins: %w", translate(err))
	}
	return coins, nil
}

// CreditWithTx adds amount to the balance and journals it in the same transaction.
func (r *UserRepository) CreditWithTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, meta map[string]interface{}) (int64, error) {
	var newBalance int64
	err := tx.QueryRow(ctx,
		`UPDATE users SET coins = coins + $1 WHERE id = $2 RETURNING coins`,
		amount, userID,
	).Scan(&newBalance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrUserNotFound
		}
		return 0, fmt.Errorf("credit coins: %w", translate(err))
	}

	entry := &domain.Transaction{
		UserID: userID,
		Type:   domain.TransactionTypeTreasureBox,
		Amount: amount,
		Meta:   meta,
	}
	if err := r.journal.CreateWithTx(ctx, tx, entry); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// ListUserIDsByTimezones pages through users whose zone is one of zones.
// Paging is keyed on id, so users added or removed mid-walk never shift a page.
func (r *UserRepository) ListUserIDsByTimezones(ctx context.Context, zones []string, after uuid.UUID, limit int) ([]domain.UserZone, error) {
	if len(zones) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, timezone
		 FROM users
		 WHERE timezone = ANY($1) AND id > $2
		 ORDER BY id
		 LIMIT $3`,
		zones, after, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list users by timezone: %w", translate(err))
	}
	defer rows.Close()

	res := make([]domain.UserZone, 0, limit)
	for rows.Next() {
		var uz domain.UserZone
		if err := rows.Scan(&uz.UserID, &uz.Timezone); err != nil {
			return nil, err
		}
		res = append(res, uz)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users by timezone: %w", translate(err))
	}
	return res, nil
}

// ListTimezones returns the distinct zones users are registered in.
func (r *UserRepository) ListTimezones(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT timezone
		 FROM users
		 WHERE timezone IS NOT NULL AND timezone <> ''
		 ORDER BY timezone`,
	)
	if err != nil {
		return nil, fmt.Errorf("list timezones: %w", translate(err))
	}
	defer rows.Close()

	var zones []string
	for rows.Next() {
		var z string
		if err := rows.Scan(&z); err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list timezones: %w", translate(err))
	}
	return zones, nil
}
