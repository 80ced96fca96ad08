package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"reward_engine/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// memStore is an in-memory stand-in for Postgres. One mutex serializes every
// transaction and a failed transaction restores the state it started from.
type memStore struct {
	mu      sync.Mutex
	users   map[uuid.UUID]int64
	quotas  map[uuid.UUID]domain.DailyQuota
	boxes   map[uuid.UUID]domain.TreasureBox
	journal []domain.Transaction
	adViews []domain.AdView

	conflicts     int   // commits to fail with ErrTransactionConflict
	failBoxInsert error // returned by InsertWithTx
	failCredit    error // returned by CreditWithTx
	failAdView    error
	txCount       int
}

func newMemStore(users ...uuid.UUID) *memStore {
	s := &memStore{
		users:  make(map[uuid.UUID]int64),
		quotas: make(map[uuid.UUID]domain.DailyQuota),
		boxes:  make(map[uuid.UUID]domain.TreasureBox),
	}
	for _, id := range users {
		s.users[id] = 0
	}
	return s
}

type memSnapshot struct {
	users   map[uuid.UUID]int64
	quotas  map[uuid.UUID]domain.DailyQuota
	boxes   map[uuid.UUID]domain.TreasureBox
	journal []domain.Transaction
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		users:   make(map[uuid.UUID]int64, len(s.users)),
		quotas:  make(map[uuid.UUID]domain.DailyQuota, len(s.quotas)),
		boxes:   make(map[uuid.UUID]domain.TreasureBox, len(s.boxes)),
		journal: append([]domain.Transaction(nil), s.journal...),
	}
	for k, v := range s.users {
		snap.users[k] = v
	}
	for k, v := range s.quotas {
		snap.quotas[k] = v
	}
	for k, v := range s.boxes {
		snap.boxes[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.users = snap.users
	s.quotas = snap.quotas
	s.boxes = snap.boxes
	s.journal = snap.journal
}

func (s *memStore) WithinTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.txCount++
	snap := s.snapshot()

	err := fn(ctx, nil)
	if err == nil && s.conflicts > 0 {
		s.conflicts--
		err = fmt.Errorf("commit tx: %w", domain.ErrTransactionConflict)
	}
	if err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) GetOrCreate(ctx context.Context, fresh domain.DailyQuota) (*domain.DailyQuota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.loadOrInsert(fresh)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *memStore) UpdateWithTx(ctx context.Context, _ pgx.Tx, fresh domain.DailyQuota, mutate func(*domain.DailyQuota) error) (*domain.DailyQuota, error) {
	q, err := s.loadOrInsert(fresh)
	if err != nil {
		return nil, err
	}
	if err := mutate(&q); err != nil {
		return nil, err
	}
	q.UpdatedAt = time.Now()
	s.quotas[q.UserID] = q
	return &q, nil
}

func (s *memStore) ResetWithTx(ctx context.Context, _ pgx.Tx, fresh domain.DailyQuota) (*domain.DailyQuota, error) {
	if _, ok := s.users[fresh.UserID]; !ok {
		return nil, domain.ErrUserNotFound
	}
	if prev, ok := s.quotas[fresh.UserID]; ok {
		fresh.CreatedAt = prev.CreatedAt
	} else {
		fresh.CreatedAt = time.Now()
	}
	fresh.UpdatedAt = fresh.CreatedAt
	s.quotas[fresh.UserID] = fresh
	return &fresh, nil
}

func (s *memStore) loadOrInsert(fresh domain.DailyQuota) (domain.DailyQuota, error) {
	if _, ok := s.users[fresh.UserID]; !ok {
		return domain.DailyQuota{}, domain.ErrUserNotFound
	}
	q, ok := s.quotas[fresh.UserID]
	if !ok {
		q = fresh
		q.CreatedAt = time.Now()
		q.UpdatedAt = q.CreatedAt
		s.quotas[q.UserID] = q
	}
	return q, nil
}

func (s *memStore) InsertWithTx(ctx context.Context, _ pgx.Tx, b *domain.TreasureBox) error {
	if s.failBoxInsert != nil {
		return s.failBoxInsert
	}
	if _, ok := s.users[b.UserID]; !ok {
		return domain.ErrUserNotFound
	}
	s.boxes[b.ID] = *b
	return nil
}

func (s *memStore) GetOwnedForUpdateWithTx(ctx context.Context, _ pgx.Tx, userID, boxID uuid.UUID) (*domain.TreasureBox, error) {
	b, ok := s.boxes[boxID]
	if !ok || b.UserID != userID {
		return nil, domain.ErrBoxNotFound
	}
	return &b, nil
}

func (s *memStore) MarkOpenedWithTx(ctx context.Context, _ pgx.Tx, boxID uuid.UUID, openedAt time.Time) (*domain.TreasureBox, error) {
	b, ok := s.boxes[boxID]
	if !ok || b.IsOpened {
		return nil, domain.ErrBoxAlreadyOpened
	}
	b.IsOpened = true
	b.OpenedAt = &openedAt
	s.boxes[boxID] = b
	return &b, nil
}

func (s *memStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.TreasureBox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make([]*domain.TreasureBox, 0)
	for _, b := range s.boxes {
		if b.UserID == userID {
			b := b
			res = append(res, &b)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].EarnedAt.Equal(res[j].EarnedAt) {
			return res[i].EarnedAt.After(res[j].EarnedAt)
		}
		return res[i].ID.String() < res[j].ID.String()
	})
	return res, nil
}

func (s *memStore) DeleteForUserWithTx(ctx context.Context, _ pgx.Tx, userID uuid.UUID, retention domain.BoxRetention) (int64, error) {
	var n int64
	for id, b := range s.boxes {
		if b.UserID != userID {
			continue
		}
		if retention == domain.BoxRetentionKeepUnopened && !b.IsOpened {
			continue
		}
		delete(s.boxes, id)
		n++
	}
	return n, nil
}

func (s *memStore) CreditWithTx(ctx context.Context, _ pgx.Tx, userID uuid.UUID, amount int64, meta map[string]interface{}) (int64, error) {
	if s.failCredit != nil {
		return 0, s.failCredit
	}
	bal, ok := s.users[userID]
	if !ok {
		return 0, domain.ErrUserNotFound
	}
	bal += amount
	s.users[userID] = bal
	s.journal = append(s.journal, domain.Transaction{
		ID:     int64(len(s.journal) + 1),
		UserID: userID,
		Type:   domain.TransactionTypeTreasureBox,
		Amount: amount,
		Meta:   meta,
	})
	return bal, nil
}

func (s *memStore) RecordAdView(ctx context.Context, v *domain.AdView) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAdView != nil {
		return s.failAdView
	}
	v.ID = uuid.New()
	v.CreatedAt = time.Now()
	s.adViews = append(s.adViews, *v)
	return nil
}

// test accessors

func (s *memStore) seedQuota(q domain.DailyQuota) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotas[q.UserID] = q
}

func (s *memStore) quota(userID uuid.UUID) (domain.DailyQuota, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotas[userID]
	return q, ok
}

func (s *memStore) balance(userID uuid.UUID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userID]
}

func (s *memStore) journalTotal(userID uuid.UUID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, t := range s.journal {
		if t.UserID == userID {
			total += t.Amount
		}
	}
	return total
}

func (s *memStore) boxCount(userID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.boxes {
		if b.UserID == userID {
			n++
		}
	}
	return n
}

func (s *memStore) adViewCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.adViews)
}

type fixedRNG struct {
	value int64
}

func (r fixedRNG) IntInRange(min, max int64) int64 {
	if r.value < min {
		return min
	}
	if r.value > max {
		return max
	}
	return r.value
}

// stepClock advances by one second on every read so earned_at values are distinct.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type engine struct {
	store  *memStore
	ledger *QuotaLedger
	issuer *RewardIssuer
	svc    *RewardService
}

func newEngine(store *memStore, rng RNG, retention domain.BoxRetention) *engine {
	issuer := NewRewardIssuer(store, store, store, newStepClock(), rng, domain.RewardPolicy{MinCoins: 5, MaxCoins: 10}, 3)
	ledger := NewQuotaLedger(store, store, store, issuer, store, LedgerConfig{
		Policy:      domain.DefaultQuotaPolicy(),
		Retention:   retention,
		MaxAttempts: 3,
	})
	return &engine{
		store:  store,
		ledger: ledger,
		issuer: issuer,
		svc:    NewRewardService(ledger, issuer, time.Second),
	}
}
