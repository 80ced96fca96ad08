package repository

import (
	"context"
	"errors"
	"fmt"
	"net"

	"reward_engine/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLSTATE codes the engine reacts to.
const (
	pgForeignKeyViolation  = "23503"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// Transactor runs a unit of work in one Postgres transaction. Every store
// method with a WithTx suffix must be given the tx handed to fn.
type Transactor struct {
	db *pgxpool.Pool
}

func NewTransactor(db *pgxpool.Pool) *Transactor {
	return &Transactor{db: db}
}

// WithinTx commits when fn returns nil and rolls back otherwise.
func (t *Transactor) WithinTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	tx, err := t.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		return fmt.Errorf("begin tx: %w: %w", domain.ErrStorageUnavailable, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, tx); err != nil {
		return translate(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", translate(err))
	}
	return nil
}

// translate tags driver errors with the matching domain error so callers can
// classify them with errors.Is. Errors that already carry a domain kind pass through.
func translate(err error) error {
	if err == nil || isDomainError(err) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %w", domain.ErrUserNotFound, err)
		case pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %w", domain.ErrTransactionConflict, err)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || (errors.As(err, &netErr) && !errors.Is(err, context.DeadlineExceeded)) {
		return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	return err
}

func isDomainError(err error) bool {
	return errors.Is(err, domain.ErrQuotaExhausted) ||
		errors.Is(err, domain.ErrBoxNotFound) ||
		errors.Is(err, domain.ErrBoxAlreadyOpened) ||
		errors.Is(err, domain.ErrUserNotFound) ||
		errors.Is(err, domain.ErrTransactionConflict) ||
		errors.Is(err, domain.ErrStorageUnavailable)
}
