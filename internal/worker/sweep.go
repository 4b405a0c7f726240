package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/attendance-mainframe/internal/config"
	"github.com/attendance-mainframe/internal/domain"
	"github.com/attendance-mainframe/internal/metrics"
)

// Source exposes the profile operations the sweep needs
type Source interface {
	ListProfiles(ctx context.Context) ([]domain.Profile, error)
	RefreshRank(ctx context.Context, userID int64) (changed, promotable bool, err error)
}

// Notifier receives promotion-eligibility notifications
type Notifier interface {
	BroadcastPromotionEligible(userID, rankID int64)
}

// Sweeper periodically reconciles stored ranks with the group directory
// and reports members eligible for promotion. Rank is authoritative in
// the directory; the sweep only tracks eligibility and adopts drift.
type Sweeper struct {
	source   Source
	notifier Notifier
	config   *config.SweepConfig
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewSweeper creates a new rank-refresh sweeper
func NewSweeper(source Source, cfg *config.SweepConfig, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		source: source,
		config: cfg,
		logger: logger,
	}
}

// SetNotifier attaches a notifier for promotion-eligibility broadcasts
func (w *Sweeper) SetNotifier(notifier Notifier) {
	w.notifier = notifier
}

// Start begins the background sweep process. A stopped sweeper can be
// started again.
func (w *Sweeper) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	w.logger.Info("rank sweep started", "interval", w.config.Interval)

	go w.run(ctx, stopCh, doneCh)
	return nil
}

// Stop stops the background sweep process
func (w *Sweeper) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)
	<-doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("rank sweep stopped")
	return nil
}

// run is the main worker loop
func (w *Sweeper) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep runs one reconciliation pass over all profiles
func (w *Sweeper) sweep(ctx context.Context) []int64 {
	w.logger.Info("starting rank sweep")
	startTime := time.Now()

	profiles, err := w.source.ListProfiles(ctx)
	if err != nil {
		w.logger.Error("failed to list profiles for sweep", "error", err)
		return nil
	}

	var promotable []int64
	changedCount := 0
	errorCount := 0

	for i := range profiles {
		userID := profiles[i].UserID
		changed, eligible, err := w.source.RefreshRank(ctx, userID)
		if err != nil {
			if errors.Is(err, domain.ErrNotInGroup) {
				w.logger.Debug("member left the group, skipping", "user_id", userID)
			} else {
				w.logger.Error("failed to refresh rank", "user_id", userID, "error", err)
				errorCount++
			}
			continue
		}
		if changed {
			changedCount++
		}
		if eligible {
			promotable = append(promotable, userID)
			metrics.PromotableDetected.Inc()
			if w.notifier != nil {
				w.notifier.BroadcastPromotionEligible(userID, profiles[i].RankID)
			}
		}
	}

	w.logger.Info("rank sweep completed",
		"duration", time.Since(startTime),
		"profiles", len(profiles),
		"rank_changes", changedCount,
		"promotable", len(promotable),
		"errors", errorCount,
	)
	return promotable
}

// IsRunning returns whether the sweeper is currently running
func (w *Sweeper) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single sweep pass and returns the promotable members
// (useful for manual triggers)
func (w *Sweeper) RunOnce(ctx context.Context) []int64 {
	return w.sweep(ctx)
}
