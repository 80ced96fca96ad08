package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"reward_engine/internal/domain"
	"reward_engine/internal/logger"
	"reward_engine/internal/metrics"
	"reward_engine/internal/service"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// Directory pages through user ids whose zone is in a given set, in id
// order, returning ids strictly greater than after.
type Directory interface {
	ListUserIDsByTimezones(ctx context.Context, zones []string, after uuid.UUID, limit int) ([]domain.UserZone, error)
}

// ErrStopped is reported by ticks requested after Stop.
var ErrStopped = errors.New("reset scheduler stopped")

// Resetter resets one user's daily quota.
type Resetter interface {
	Reset(ctx context.Context, userID uuid.UUID) (*domain.DailyQuota, error)
}

type Config struct {
	Spec          string        // cron expression, evaluated in UTC
	Window        time.Duration // how long after local midnight a zone stays eligible
	BatchSize     int
	Workers       int
	TaskTimeout   time.Duration
	SkipIfRunning bool
}

func DefaultConfig() Config {
	return Config{
		Spec:        "*/30 * * * *",
		Window:      30 * time.Minute,
		BatchSize:   100,
		Workers:     10,
		TaskTimeout: 10 * time.Second,
	}
}

// TickReport summarizes one tick.
type TickReport struct {
	Zones     []string
	Processed int // resets that succeeded
	Missing   int // users that no longer exist
	Failed    int
	Err       error // set when the tick ended early
}

// ResetScheduler resets the daily quota of every user whose local clock has
// just passed midnight.
type ResetScheduler struct {
	cron     *cron.Cron
	clock    service.Clock
	catalog  TimezoneCatalog
	dir      Directory
	resetter Resetter
	cfg      Config
	log      *slog.Logger

	mu       sync.Mutex // orders running.Add against Stop
	running  sync.WaitGroup
	stopping chan struct{}
	stopOnce sync.Once
	lastTick atomic.Value // time.Time
}

func NewResetScheduler(clock service.Clock, catalog TimezoneCatalog, dir Directory, resetter Resetter, cfg Config) (*ResetScheduler, error) {
	def := DefaultConfig()
	if cfg.Spec == "" {
		cfg.Spec = def.Spec
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = def.TaskTimeout
	}

	s := &ResetScheduler{
		clock:    clock,
		catalog:  catalog,
		dir:      dir,
		resetter: resetter,
		cfg:      cfg,
		log:      logger.Component("reset_scheduler"),
		stopping: make(chan struct{}),
	}

	cl := cronLogger{l: s.log}
	wrappers := []cron.JobWrapper{cron.Recover(cl)}
	if cfg.SkipIfRunning {
		wrappers = append(wrappers, cron.SkipIfStillRunning(cl))
	}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(wrappers...),
	)

	if _, err := s.cron.AddFunc(cfg.Spec, func() { s.RunTick(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule reset %q: %w", cfg.Spec, err)
	}
	return s, nil
}

func (s *ResetScheduler) Start() {
	s.log.Info("reset scheduler started", "spec", s.cfg.Spec, "window", s.cfg.Window, "workers", s.cfg.Workers)
	s.cron.Start()
}

// Stop stops scheduling new ticks and waits, bounded by ctx, for running
// ticks to finish their current batch. Ticks started by hand are waited for too.
func (s *ResetScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopOnce.Do(func() { close(s.stopping) })
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("reset scheduler stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn("reset scheduler stop timed out", "error", ctx.Err())
		return ctx.Err()
	}
}

// LastTick returns when the last tick began, zero if none has run.
func (s *ResetScheduler) LastTick() time.Time {
	if t, ok := s.lastTick.Load().(time.Time); ok {
		return t
	}
	return time.Time{}
}

// RunTick selects the zones at local midnight and resets their users batch by batch.
func (s *ResetScheduler) RunTick(ctx context.Context) TickReport {
	if !s.beginTick() {
		metrics.ResetTicks.WithLabelValues("interrupted").Inc()
		return TickReport{Err: ErrStopped}
	}
	defer s.running.Done()

	started := time.Now()
	now := s.clock.Now()
	s.lastTick.Store(now)
	ctx = logger.IntoContext(ctx, "tick", now.Format(time.RFC3339))
	log := logger.FromContext(ctx, s.log)

	var report TickReport
	report.Zones, report.Err = s.selectZones(now)
	if report.Err != nil {
		log.Error("reset tick aborted", "error", report.Err)
		metrics.ResetTicks.WithLabelValues("failed").Inc()
		return report
	}
	if len(report.Zones) == 0 {
		log.Debug("no zones at local midnight", "at", now)
		metrics.ResetTicks.WithLabelValues("idle").Inc()
		return report
	}

	outcome := "ok"
	var after uuid.UUID
	for {
		if s.isStopping() || ctx.Err() != nil {
			outcome = "interrupted"
			break
		}

		batch, err := s.dir.ListUserIDsByTimezones(ctx, report.Zones, after, s.cfg.BatchSize)
		if err != nil {
			report.Err = fmt.Errorf("list users after %s: %w", after, err)
			log.Error("reset tick aborted", "zones", report.Zones, "error", report.Err)
			outcome = "failed"
			break
		}

		s.resetBatch(ctx, batch, &report)

		if len(batch) < s.cfg.BatchSize {
			break
		}
		after = batch[len(batch)-1].UserID
	}

	metrics.ResetTicks.WithLabelValues(outcome).Inc()
	metrics.ResetTickDuration.Observe(time.Since(started).Seconds())
	log.Info("reset tick finished",
		"zones", report.Zones,
		"processed", report.Processed,
		"missing", report.Missing,
		"failed", report.Failed,
		"outcome", outcome,
		"duration", time.Since(started),
	)
	return report
}

func (s *ResetScheduler) selectZones(at time.Time) ([]string, error) {
	zones, err := s.catalog.ListAll()
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}

	var selected []string
	for _, zone := range zones {
		local, err := s.catalog.LocalTime(zone, at)
		if err != nil {
			s.log.Warn("skipping zone", "zone", zone, "error", err)
			continue
		}
		if InResetWindow(local, s.cfg.Window) {
			selected = append(selected, zone)
		}
	}
	return selected, nil
}

func (s *ResetScheduler) resetBatch(ctx context.Context, batch []domain.UserZone, report *TickReport) {
	var processed, missing, failed atomic.Int64
	log := logger.FromContext(ctx, s.log)

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Workers)
	for _, uz := range batch {
		uz := uz
		g.Go(func() error {
			taskCtx, cancel := context.WithTimeout(logger.IntoContext(ctx, "zone", uz.Timezone), s.cfg.TaskTimeout)
			defer cancel()

			_, err := s.resetter.Reset(taskCtx, uz.UserID)
			switch {
			case err == nil:
				processed.Add(1)
			case errors.Is(err, domain.ErrUserNotFound):
				missing.Add(1)
				log.Debug("user gone before reset", "user_id", uz.UserID, "zone", uz.Timezone)
			default:
				failed.Add(1)
				log.Error("quota reset failed", "user_id", uz.UserID, "zone", uz.Timezone, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Processed += int(processed.Load())
	report.Missing += int(missing.Load())
	report.Failed += int(failed.Load())
}

func (s *ResetScheduler) beginTick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isStopping() {
		return false
	}
	s.running.Add(1)
	return true
}

func (s *ResetScheduler) isStopping() bool {
	select {
	case <-s.stopping:
		return true
	default:
		return false
	}
}

// InResetWindow reports whether the wall clock of local reads within window after 00:00.
func InResetWindow(local time.Time, window time.Duration) bool {
	h, m, sec := local.Clock()
	since := time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second +
		time.Duration(local.Nanosecond())
	return since < window
}

// cronLogger routes robfig/cron's logging into slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
