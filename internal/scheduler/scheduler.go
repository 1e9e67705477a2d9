package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"esports-aggregator/internal/config"
	"esports-aggregator/internal/constants"
	"esports-aggregator/internal/domain"
	"esports-aggregator/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var ErrAlreadyRunning = errors.New("scheduler already running")

// RunRecorder persists finished sync runs. It is optional.
type RunRecorder interface {
	SaveSyncRun(ctx context.Context, run domain.SyncRun) error
}

type SyncStatus string

const (
	SyncCompleted SyncStatus = "completed"
	SyncPending   SyncStatus = "pending"
	SyncSkipped   SyncStatus = "skipped"
)

// SyncResult answers an explicit sync request.
type SyncResult struct {
	Status SyncStatus      `json:"status"`
	Run    *domain.SyncRun `json:"run,omitempty"`
}

// Scheduler refreshes every (provider, game, kind) on a fixed interval.
// At most one cycle runs at a time; triggers arriving during a cycle are
// folded into a single follow-up cycle.
type Scheduler struct {
	agg         *service.Aggregator
	rt          *service.Runtime
	recorder    RunRecorder
	interval    time.Duration
	syncOnStart bool
	historySize int
	logger      zerolog.Logger

	mu            sync.Mutex
	running       bool
	cycleActive   bool
	pending       bool
	pendingForced bool
	history       []domain.SyncRun
	nextRun       time.Time

	trigger  chan bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func New(cfg *config.Config, agg *service.Aggregator, rt *service.Runtime, recorder RunRecorder, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		agg:         agg,
		rt:          rt,
		recorder:    recorder,
		interval:    cfg.SyncInterval,
		syncOnStart: cfg.SyncOnStart,
		historySize: constants.SyncHistorySize,
		logger:      logger.With().Str("component", "scheduler").Logger(),
		trigger:     make(chan bool, 1),
	}
}

// Start launches the background loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.nextRun = s.rt.Now()
	if !s.syncOnStart {
		s.nextRun = s.nextRun.Add(s.interval)
	}
	stop := s.stopChan
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx, stop)

	s.logger.Info().Dur("interval", s.interval).Msg("scheduler started")
	return nil
}

// Stop ends the loop and waits for an in-progress cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	if s.syncOnStart {
		s.runCycle(ctx, false)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.setNextRun(s.rt.Now().Add(s.interval))

	for {
		select {
		case <-ticker.C:
			s.setNextRun(s.rt.Now().Add(s.interval))
			s.runCycle(ctx, false)
		case forced := <-s.trigger:
			s.runCycle(ctx, forced)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Sync runs one cycle now on the caller's goroutine. Without force, a
// request arriving within one interval of the last run is skipped.
func (s *Scheduler) Sync(ctx context.Context, force bool) SyncResult {
	s.mu.Lock()
	last, hasLast := s.lastRunLocked()
	if !force && hasLast && s.rt.Now().Sub(last.FinishedAt) < s.interval {
		s.mu.Unlock()
		return SyncResult{Status: SyncSkipped, Run: &last}
	}
	s.mu.Unlock()

	run, ran := s.runCycle(ctx, force)
	if !ran {
		res := SyncResult{Status: SyncPending}
		if hasLast {
			res.Run = &last
		}
		return res
	}
	return SyncResult{Status: SyncCompleted, Run: &run}
}

// Trigger asks the running loop for a cycle without waiting for it. It
// reports false when the loop is not running or a trigger is already queued.
func (s *Scheduler) Trigger(force bool) bool {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return false
	}
	select {
	case s.trigger <- force:
		return true
	default:
		return false
	}
}

// runCycle executes one cycle unless one is already active, in which case
// the request becomes the pending follow-up and ran is false.
func (s *Scheduler) runCycle(ctx context.Context, forced bool) (run domain.SyncRun, ran bool) {
	s.mu.Lock()
	if s.cycleActive {
		s.pending = true
		s.pendingForced = s.pendingForced || forced
		s.mu.Unlock()
		s.logger.Debug().Bool("forced", forced).Msg("cycle in progress, trigger coalesced")
		return domain.SyncRun{}, false
	}
	s.cycleActive = true
	s.mu.Unlock()

	run = s.cycle(ctx, forced)

	s.mu.Lock()
	s.cycleActive = false
	s.appendHistory(run)
	again, againForced := s.pending, s.pendingForced
	s.pending, s.pendingForced = false, false
	loopRunning := s.running
	s.mu.Unlock()

	if s.recorder != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DatabaseTimeout)
		if err := s.recorder.SaveSyncRun(rctx, run); err != nil {
			s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("failed to persist sync run")
		}
		cancel()
	}

	if again {
		if loopRunning {
			select {
			case s.trigger <- againForced:
			default:
			}
		} else {
			s.runCycle(ctx, againForced)
		}
	}
	return run, true
}

type target struct {
	game domain.GameKind
	kind domain.RecordKind
}

func (s *Scheduler) cycle(ctx context.Context, forced bool) domain.SyncRun {
	run := domain.SyncRun{ID: uuid.NewString(), StartedAt: s.rt.Now(), Forced: forced}

	var targets []target
	for _, g := range domain.SupportedGames {
		for _, k := range []domain.RecordKind{domain.KindMatches, domain.KindPlayerStats} {
			targets = append(targets, target{game: g, kind: k})
		}
	}

	outcomes := make([][]domain.PairOutcome, len(targets))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(constants.SyncConcurrency)
	for i, t := range targets {
		g.Go(func() error {
			outcomes[i] = s.syncTarget(gCtx, t)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		run.Outcomes = append(run.Outcomes, o...)
	}
	run.FinishedAt = s.rt.Now()

	s.logger.Info().
		Str("run_id", run.ID).
		Bool("forced", forced).
		Int("refreshed", run.Count(domain.PairRefreshed)).
		Int("deferred", run.Count(domain.PairDeferred)).
		Int("failed", run.Count(domain.PairFailed)).
		Dur("duration", run.FinishedAt.Sub(run.StartedAt)).
		Msg("sync cycle complete")
	return run
}

// syncTarget walks providers for one game and kind in priority order. Once a
// provider refreshes the entry, lower priority providers are not called.
func (s *Scheduler) syncTarget(ctx context.Context, t target) []domain.PairOutcome {
	var out []domain.PairOutcome
	covered := false
	for _, ad := range s.rt.Registry.For(t.game, t.kind) {
		base := domain.PairOutcome{ProviderID: ad.ID(), Game: t.game, Kind: t.kind}
		switch {
		case covered:
			base.Status = domain.PairCovered
			out = append(out, base)
			continue
		case s.rt.Health.IsDisabled(ad.ID()):
			base.Status = domain.PairDisabled
			out = append(out, base)
			continue
		}

		o := s.agg.SyncPair(ctx, ad, t.game, t.kind)
		if o.Status == domain.PairRefreshed {
			covered = true
		}
		out = append(out, o)
	}
	return out
}

func (s *Scheduler) appendHistory(run domain.SyncRun) {
	s.history = append(s.history, run)
	if over := len(s.history) - s.historySize; over > 0 {
		s.history = append([]domain.SyncRun(nil), s.history[over:]...)
	}
}

func (s *Scheduler) setNextRun(t time.Time) {
	s.mu.Lock()
	s.nextRun = t
	s.mu.Unlock()
}

func (s *Scheduler) lastRunLocked() (domain.SyncRun, bool) {
	if len(s.history) == 0 {
		return domain.SyncRun{}, false
	}
	return s.history[len(s.history)-1], true
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) LastRun() (domain.SyncRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRunLocked()
}

// NextRun is zero when the loop is not running.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return time.Time{}
	}
	return s.nextRun
}

// History returns finished runs, oldest first.
func (s *Scheduler) History() []domain.SyncRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SyncRun(nil), s.history...)
}
