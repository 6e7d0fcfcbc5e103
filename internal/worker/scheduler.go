package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/errgroup"

	"github.com/minigame-engine/internal/config"
	"github.com/minigame-engine/internal/domain"
	"github.com/minigame-engine/internal/postgres"
	"github.com/minigame-engine/internal/redis"
	"github.com/minigame-engine/internal/service"
)

// Scheduler drives mini-game windows in the background. Due drafts are
// started, closed windows are settled, and games stuck in calculating are
// retried until every participant is settled. It also reconciles the cached
// standings against the authoritative totals.
type Scheduler struct {
	games     *service.MiniGameService
	postgres  *postgres.Repository
	standings *redis.StandingsCache
	config    *config.SchedulerConfig
	logger    *slog.Logger

	scheduler gocron.Scheduler
	mu        sync.Mutex
	running   bool
}

// NewScheduler creates a new game scheduler. standings may be nil when
// running without the cache.
func NewScheduler(
	games *service.MiniGameService,
	pg *postgres.Repository,
	standings *redis.StandingsCache,
	cfg *config.SchedulerConfig,
	logger *slog.Logger,
) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		games:     games,
		postgres:  pg,
		standings: standings,
		config:    cfg,
		logger:    logger,
		scheduler: sched,
	}, nil
}

// Start registers the periodic jobs and begins running them
func (w *Scheduler) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if _, err := w.scheduler.NewJob(
		gocron.DurationJob(w.config.Interval),
		gocron.NewTask(func() { w.tick(ctx) }),
	); err != nil {
		return err
	}

	// Reconciliation is cheap but rarely needed, so it runs on a longer cycle
	if _, err := w.scheduler.NewJob(
		gocron.DurationJob(10*w.config.Interval),
		gocron.NewTask(func() { w.ReconcileStandings(ctx) }),
	); err != nil {
		return err
	}

	w.scheduler.Start()
	w.logger.Info("game scheduler started",
		"interval", w.config.Interval,
		"concurrency", w.config.Concurrency,
		"auto_start", w.config.AutoStart,
	)
	return nil
}

// Stop shuts the scheduler down and waits for running jobs
func (w *Scheduler) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	err := w.scheduler.Shutdown()
	w.logger.Info("game scheduler stopped")
	return err
}

// IsRunning returns whether the scheduler is currently running
func (w *Scheduler) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single scheduler pass (useful for manual triggers)
func (w *Scheduler) RunOnce(ctx context.Context) {
	w.tick(ctx)
	w.ReconcileStandings(ctx)
}

// tick runs one pass over due games
func (w *Scheduler) tick(ctx context.Context) {
	var started int
	if w.config.AutoStart {
		started = w.startDueGames(ctx)
	}
	ended := w.endDueGames(ctx)

	if started > 0 || ended > 0 {
		w.logger.Info("scheduler pass completed", "started", started, "ended", ended)
	}
}

// startDueGames activates draft games whose window has opened
func (w *Scheduler) startDueGames(ctx context.Context) int {
	due, err := w.games.DueToStart(ctx)
	if err != nil {
		w.logger.Error("failed to list games due to start", "error", err)
		return 0
	}

	var started atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.Concurrency)
	for _, game := range due {
		g.Go(func() error {
			switch err := w.games.StartScheduled(ctx, game.ID); {
			case err == nil:
				started.Add(1)
			case errors.Is(err, domain.ErrNoParticipants):
				// An empty roster stays in draft until someone joins
				w.logger.Warn("skipping game on empty challenge", "game_id", game.ID)
			case errors.Is(err, domain.ErrInvalidState):
				// Someone else started it between the listing and now
			default:
				w.logger.Error("failed to start game", "game_id", game.ID, "error", err)
			}
			return nil
		})
	}
	g.Wait()
	return int(started.Load())
}

// endDueGames settles active games whose window has closed, including games
// a previous run left in calculating
func (w *Scheduler) endDueGames(ctx context.Context) int {
	due, err := w.games.DueToEnd(ctx)
	if err != nil {
		w.logger.Error("failed to list games due to end", "error", err)
		return 0
	}

	var ended atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.Concurrency)
	for _, game := range due {
		g.Go(func() error {
			switch err := w.games.EndScheduled(ctx, game.ID); {
			case err == nil:
				ended.Add(1)
			case errors.Is(err, domain.ErrInvalidState):
				// Someone else is settling it right now
			default:
				w.logger.Error("failed to end game", "game_id", game.ID, "error", err)
			}
			return nil
		})
	}
	g.Wait()
	return int(ended.Load())
}

// ReconcileStandings rebuilds the cached standings from the authoritative
// totals, healing any drift from missed cache writes
func (w *Scheduler) ReconcileStandings(ctx context.Context) {
	if w.standings == nil {
		return
	}

	startTime := time.Now()
	challengeIDs, err := w.postgres.ListChallengeIDs(ctx)
	if err != nil {
		w.logger.Error("failed to list challenges for reconciliation", "error", err)
		return
	}

	synced := 0
	failed := 0
	for _, challengeID := range challengeIDs {
		totals, err := w.postgres.Totals(ctx, challengeID)
		if err != nil {
			w.logger.Error("failed to load totals", "challenge_id", challengeID, "error", err)
			failed++
			continue
		}
		if len(totals) == 0 {
			continue
		}
		if err := w.standings.ReplaceAll(ctx, challengeID, totals); err != nil {
			w.logger.Error("failed to replace cached standings", "challenge_id", challengeID, "error", err)
			failed++
			continue
		}
		synced++
	}

	w.logger.Info("standings reconciled",
		"duration", time.Since(startTime),
		"synced", synced,
		"errors", failed,
	)
}
