package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reward_engine/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const boxColumns = `id, user_id, coins_awarded, earned_at, opened_at, is_opened`

type TreasureBoxRepository struct {
	db *pgxpool.Pool
}

func NewTreasureBoxRepository(db *pgxpool.Pool) *TreasureBoxRepository {
	return &TreasureBoxRepository{db: db}
}

// InsertWithTx stores an unopened box. A missing owner surfaces as ErrUserNotFound.
func (r *TreasureBoxRepository) InsertWithTx(ctx context.Context, tx pgx.Tx, b *domain.TreasureBox) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO treasure_boxes (id, user_id, coins_awarded, earned_at, is_opened)
		 VALUES ($1, $2, $3, $4, false)`,
		b.ID, b.UserID, b.CoinsAwarded, b.EarnedAt,
	)
	if err != nil {
		return fmt.Errorf("insert treasure box: %w", translate(err))
	}
	return nil
}

// GetOwnedForUpdateWithTx locks the box if it belongs to userID.
// Foreign and missing boxes are both ErrBoxNotFound.
func (r *TreasureBoxRepository) GetOwnedForUpdateWithTx(ctx context.Context, tx pgx.Tx, userID, boxID uuid.UUID) (*domain.TreasureBox, error) {
	b, err := scanBox(tx.QueryRow(ctx,
		`SELECT `+boxColumns+`
		 FROM treasure_boxes
		 WHERE id = $1 AND user_id = $2
		 FOR UPDATE`,
		boxID, userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBoxNotFound
		}
		return nil, fmt.Errorf("get treasure box: %w", translate(err))
	}
	return b, nil
}

// MarkOpenedWithTx flips an unopened box to opened. If the box was opened in
// the meantime nothing changes and ErrBoxAlreadyOpened is returned.
func (r *TreasureBoxRepository) MarkOpenedWithTx(ctx context.Context, tx pgx.Tx, boxID uuid.UUID, openedAt time.Time) (*domain.TreasureBox, error) {
	b, err := scanBox(tx.QueryRow(ctx,
		`UPDATE treasure_boxes
		 SET is_opened = true, opened_at = $2
		 WHERE id = $1 AND is_opened = false
		 RETURNING `+boxColumns,
		boxID, openedAt,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBoxAlreadyOpened
		}
		return nil, fmt.Errorf("open treasure box: %w", translate(err))
	}
	return b, nil
}

// ListByUser returns the user's boxes, most recently earned first.
func (r *TreasureBoxRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.TreasureBox, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+boxColumns+`
		 FROM treasure_boxes
		 WHERE user_id = $1
		 ORDER BY earned_at DESC, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list treasure boxes: %w", translate(err))
	}
	defer rows.Close()

	res := make([]*domain.TreasureBox, 0)
	for rows.Next() {
		b, err := scanBox(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list treasure boxes: %w", translate(err))
	}
	return res, nil
}

// DeleteForUserWithTx removes the user's boxes according to retention and
// returns how many rows went away.
func (r *TreasureBoxRepository) DeleteForUserWithTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, retention domain.BoxRetention) (int64, error) {
	query := `DELETE FROM treasure_boxes WHERE user_id = $1`
	if retention == domain.BoxRetentionKeepUnopened {
		query += ` AND is_opened = true`
	}

	tag, err := tx.Exec(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("delete treasure boxes: %w", translate(err))
	}
	return tag.RowsAffected(), nil
}

func scanBox(row pgx.Row) (*domain.TreasureBox, error) {
	var b domain.TreasureBox
	if err := row.Scan(&b.ID, &b.UserID, &b.CoinsAwarded, &b.EarnedAt, &b.OpenedAt, &b.IsOpened); err != nil {
		return nil, err
	}
	return &b, nil
}
