package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"reward_engine/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func awardBox(t *testing.T, e *engine, user uuid.UUID) *domain.TreasureBox {
	t.Helper()

	var box *domain.TreasureBox
	err := e.store.WithinTx(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
		b, err := e.issuer.Award(ctx, tx, user)
		box = b
		return err
	})
	require.NoError(t, err)
	return box
}

func TestOpen_CreditsOnceThenRejects(t *testing.T) {
	user := uuid.New()
	store := newMemStore(user)
	e := newEngine(store, fixedRNG{value: 7}, domain.BoxRetentionDeleteAll)
	ctx := context.Background()

	box := awardBox(t, e, user)
	require.Equal(t, int64(7), box.CoinsAwarded)

	res, err := e.issuer.Open(ctx, user, box.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.NewBalance)
	assert.True(t, res.Box.IsOpened)
	require.NotNil(t, res.Box.OpenedAt)

	_, err = e.issuer.Open(ctx, user, box.ID)
	require.ErrorIs(t, err, domain.ErrBoxAlreadyOpened)
	assert.Equal(t, int64(7), store.balance(user))
	assert.Equal(t, int64(7), store.journalTotal(user))
}

func TestOpen_ForeignAndMissingBoxes(t *testing.T) {
	owner, other := uuid.New(), uuid.New()
	store := newMemStore(owner, other)
	e := newEngine(store, fixedRNG{value: 7}, domain.BoxRetentionDeleteAll)
	ctx := context.Background()

	box := awardBox(t, e, owner)

	_, err := e.issuer.Open(ctx, other, box.ID)
	assert.ErrorIs(t, err, domain.ErrBoxNotFound)

	_, err = e.issuer.Open(ctx, owner, uuid.New())
	assert.ErrorIs(t, err, domain.ErrBoxNotFound)

	assert.Equal(t, int64(0), store.balance(other))
	assert.Equal(t, int64(0), store.balance(owner))
}

func TestOpen_ConcurrentDuplicatesPayOnce(t *testing.T) {
	user := uuid.New()
	store := newMemStore(user)
	e := newEngine(store, fixedRNG{value: 9}, domain.BoxRetentionDeleteAll)
	box := awardBox(t, e, user)

	const n = 16
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		already   atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.issuer.Open(context.Background(), user, box.ID)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, domain.ErrBoxAlreadyOpened):
				already.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(n-1), already.Load())
	assert.Equal(t, int64(9), store.balance(user))
}

func TestOpen_CreditFailureLeavesBoxSealed(t *testing.T) {
	user := uuid.New()
	store := newMemStore(user)
	e := newEngine(store, fixedRNG{value: 7}, domain.BoxRetentionDeleteAll)
	ctx := context.Background()
	box := awardBox(t, e, user)

	store.failCredit = domain.ErrStorageUnavailable
	_, err := e.issuer.Open(ctx, user, box.ID)
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)

	boxes, err := e.issuer.ListByUser(ctx, user)
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.False(t, boxes[0].IsOpened)
	assert.Nil(t, boxes[0].OpenedAt)

	store.failCredit = nil
	res, err := e.issuer.Open(ctx, user, box.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.NewBalance)
}

func TestOpen_BalanceMatchesOpenedBoxes(t *testing.T) {
	user := uuid.New()
	store := newMemStore(user)
	e := newEngine(store, MathRNG{}, domain.BoxRetentionDeleteAll)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := e.ledger.RecordView(ctx, user, nil)
		require.NoError(t, err)
	}

	boxes, err := e.issuer.ListByUser(ctx, user)
	require.NoError(t, err)
	require.Len(t, boxes, 5)

	var want int64
	for i, b := range boxes {
		assert.GreaterOrEqual(t, b.CoinsAwarded, int64(5))
		assert.LessOrEqual(t, b.CoinsAwarded, int64(10))
		if i > 0 {
			assert.False(t, b.EarnedAt.After(boxes[i-1].EarnedAt), "boxes must be newest first")
		}
		if i%2 == 0 {
			_, err := e.issuer.Open(ctx, user, b.ID)
			require.NoError(t, err)
			want += b.CoinsAwarded
		}
	}

	assert.Equal(t, want, store.balance(user))
	assert.Equal(t, want, store.journalTotal(user))

	boxes, err = e.issuer.ListByUser(ctx, user)
	require.NoError(t, err)
	for _, b := range boxes {
		assert.Equal(t, b.IsOpened, b.OpenedAt != nil)
	}
}

func TestMathRNG_StaysInRange(t *testing.T) {
	var r MathRNG
	for i := 0; i < 1000; i++ {
		v := r.IntInRange(10, 50)
		require.GreaterOrEqual(t, v, int64(10))
		require.LessOrEqual(t, v, int64(50))
	}
	assert.Equal(t, int64(3), r.IntInRange(3, 3))
}
