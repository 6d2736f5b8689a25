package reconcile

import (
	"context"
	"log/slog"
	"time"

	intentDatamodel "github.com/akwaba/rentpay/internal/core/datamodel/intent"
	"github.com/akwaba/rentpay/internal/core/events"
)

// Sweeper runs the two background reconciliation loops: expiring stale
// intents and replaying verified-but-unprocessed callback deliveries.
type Sweeper struct {
	engine         *Engine
	intents        IntentStore
	callbacks      CallbackStore
	eventBus       *events.EventBus
	logger         *slog.Logger
	expiryHorizon  time.Duration
	expiryInterval time.Duration
	replayInterval time.Duration
	batchSize      int
}

type SweeperConfig struct {
	ExpiryHorizon  time.Duration
	ExpiryInterval time.Duration
	ReplayInterval time.Duration
	BatchSize      int
}

func NewSweeper(engine *Engine, intents IntentStore, callbacks CallbackStore, eventBus *events.EventBus, cfg SweeperConfig, logger *slog.Logger) *Sweeper {
	horizon := cfg.ExpiryHorizon
	if horizon <= 0 {
		horizon = 24 * time.Hour
	}
	expiryInterval := cfg.ExpiryInterval
	if expiryInterval <= 0 {
		expiryInterval = 5 * time.Minute
	}
	replayInterval := cfg.ReplayInterval
	if replayInterval <= 0 {
		replayInterval = time.Minute
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	return &Sweeper{
		engine:         engine,
		intents:        intents,
		callbacks:      callbacks,
		eventBus:       eventBus,
		logger:         logger,
		expiryHorizon:  horizon,
		expiryInterval: expiryInterval,
		replayInterval: replayInterval,
		batchSize:      batchSize,
	}
}

// Run blocks until the context is cancelled, driving both sweeps on their
// own tickers.
func (s *Sweeper) Run(ctx context.Context) {
	expiryTicker := time.NewTicker(s.expiryInterval)
	replayTicker := time.NewTicker(s.replayInterval)
	defer expiryTicker.Stop()
	defer replayTicker.Stop()

	s.logger.Info("sweeper started",
		"expiry_horizon", s.expiryHorizon,
		"expiry_interval", s.expiryInterval,
		"replay_interval", s.replayInterval,
		"batch_size", s.batchSize)

	for {
		select {
		case <-expiryTicker.C:
			if count, err := s.ExpireStale(ctx); err != nil {
				s.logger.Error("expiry sweep failed", "error", err)
			} else if count > 0 {
				s.logger.Info("expiry sweep completed", "expired", count)
			}
		case <-replayTicker.C:
			if count, err := s.ReplayUnprocessed(ctx); err != nil {
				s.logger.Error("replay sweep failed", "error", err)
			} else if count > 0 {
				s.logger.Info("replay sweep completed", "replayed", count)
			}
		case <-ctx.Done():
			s.logger.Info("sweeper shutting down")
			return
		}
	}
}

// ExpireStale moves intents stuck in created/pending beyond the horizon into
// expired. Each row goes through the same state-gated transition as a
// callback would, so a legitimate late delivery racing the sweep keeps its
// first-terminal-transition-wins guarantee.
func (s *Sweeper) ExpireStale(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.expiryHorizon)

	candidates, err := s.intents.ListExpiryCandidates(ctx, cutoff, s.batchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, candidate := range candidates {
		reason := "expired before settlement"
		updated, applied, err := s.intents.TransitionStatus(ctx, candidate.Reference, intentDatamodel.StatusExpired, &reason)
		if err != nil {
			s.logger.Error("failed to expire intent",
				"error", err,
				"reference", candidate.Reference)
			continue
		}
		if !applied {
			// A callback settled the intent between the candidate query and
			// the conditional update; nothing to do.
			s.logger.Info("expiry skipped, intent settled concurrently",
				"reference", candidate.Reference,
				"status", updated.Status)
			continue
		}

		expired++
		s.eventBus.Publish(ctx, events.NewIntentExpiredEvent(updated.ID, updated.Reference))
	}

	return expired, nil
}

// ReplayUnprocessed re-runs reconciliation for verified deliveries that never
// completed, typically because the side-effect pipeline failed after the paid
// transition.
func (s *Sweeper) ReplayUnprocessed(ctx context.Context) (int, error) {
	logs, err := s.callbacks.ListUnprocessed(ctx, s.batchSize)
	if err != nil {
		return 0, err
	}

	replayed := 0
	for _, logRow := range logs {
		if err := s.engine.ReplayDelivery(ctx, logRow); err != nil {
			s.logger.Error("callback replay failed",
				"error", err,
				"callback_log_id", logRow.ID,
				"reference", logRow.Reference)
			continue
		}
		replayed++
	}

	return replayed, nil
}
