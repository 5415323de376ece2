package realtime

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// inflightSanityBound is the marker count past which the janitor treats the
// in-flight set as leaking and clears it wholesale. The set is a cache; a
// dropped marker only lets a duplicate through once.
const inflightSanityBound = 1024

// LiveSet exposes the transport's view of which connections still exist.
type LiveSet interface {
	LiveConnectionIDs() map[string]struct{}
}

// Cleaner runs the full disconnect cleanup for one connection: participant
// connectivity, participant_left broadcasts, and registry removal.
type Cleaner interface {
	Disconnect(ctx context.Context, connectionID string) error
}

// InflightTracker exposes the engine's in-flight operation marker set.
type InflightTracker interface {
	InflightSize() int
	ClearInflight() int
}

// JanitorConfig wires the janitor's collaborators and intervals.
type JanitorConfig struct {
	Registry          *Registry
	Live              LiveSet
	Cleaner           Cleaner
	Inflight          InflightTracker
	Governor          *Governor
	StatsInterval     time.Duration
	ReconcileInterval time.Duration
	Logger            *zap.Logger
}

// Janitor periodically reconciles the registry against the live transport
// connection set and prunes empty rooms. It is the backstop for connections
// that vanished without a clean disconnect handshake.
type Janitor struct {
	registry          *Registry
	live              LiveSet
	cleaner           Cleaner
	inflight          InflightTracker
	governor          *Governor
	statsInterval     time.Duration
	reconcileInterval time.Duration
	logger            *zap.Logger
}

// NewJanitor constructs a janitor from the provided wiring.
func NewJanitor(cfg JanitorConfig) *Janitor {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	statsInterval := cfg.StatsInterval
	if statsInterval <= 0 {
		statsInterval = 30 * time.Second
	}
	reconcileInterval := cfg.ReconcileInterval
	if reconcileInterval <= 0 {
		reconcileInterval = 2 * time.Minute
	}
	return &Janitor{
		registry:          cfg.Registry,
		live:              cfg.Live,
		cleaner:           cfg.Cleaner,
		inflight:          cfg.Inflight,
		governor:          cfg.Governor,
		statsInterval:     statsInterval,
		reconcileInterval: reconcileInterval,
		logger:            logger,
	}
}

// Run blocks on the two sweep timers until the context is canceled.
func (j *Janitor) Run(ctx context.Context) error {
	statsTicker := time.NewTicker(j.statsInterval)
	defer statsTicker.Stop()
	reconcileTicker := time.NewTicker(j.reconcileInterval)
	defer reconcileTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("janitor stopped")
			return ctx.Err()
		case <-statsTicker.C:
			j.SweepStats()
		case <-reconcileTicker.C:
			j.Reconcile(ctx)
		}
	}
}

// SweepStats reports process counters and clears the in-flight marker set if
// it has grown past the sanity bound.
func (j *Janitor) SweepStats() {
	fields := []zap.Field{
		zap.Int("connections", len(j.registry.ConnectionIDs())),
		zap.Int("activities", j.registry.ActivityCount()),
	}
	if j.governor != nil {
		fields = append(fields, zap.Int("admitted", j.governor.Current()))
	}
	if j.inflight != nil {
		size := j.inflight.InflightSize()
		fields = append(fields, zap.Int("inflight_ops", size))
		if size > inflightSanityBound {
			cleared := j.inflight.ClearInflight()
			j.logger.Warn("in-flight marker set cleared past sanity bound", zap.Int("cleared", cleared))
		}
	}
	j.logger.Info("realtime stats", fields...)
}

// Reconcile runs the disconnect cleanup for every registry connection absent
// from the live transport set, then prunes empty rooms.
func (j *Janitor) Reconcile(ctx context.Context) {
	live := j.live.LiveConnectionIDs()
	stale := 0
	for _, connectionID := range j.registry.ConnectionIDs() {
		if _, alive := live[connectionID]; alive {
			continue
		}
		stale++
		if err := j.cleaner.Disconnect(ctx, connectionID); err != nil {
			j.logger.Error("stale connection cleanup failed",
				zap.String("connection_id", connectionID),
				zap.Error(err))
		}
		if j.governor != nil {
			j.governor.Release(connectionID)
		}
	}
	pruned := j.registry.PruneEmptyRooms()
	if stale > 0 || pruned > 0 {
		j.logger.Info("registry reconciled",
			zap.Int("stale_connections", stale),
			zap.Int("rooms_pruned", pruned))
	}
}
