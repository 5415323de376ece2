package realtime

import (
	"sync"

	"go.uber.org/zap"
)

// RejectionReasonCapacityFull is sent with a rejected admission.
const RejectionReasonCapacityFull = "capacity_full"

// Admission is the governor's verdict on a connection attempt.
type Admission struct {
	Accepted bool
	Reason   string
	// Warn is set when the admitted connection pushed the counter past the
	// soft watermark. Informational only; never a rejection.
	Warn bool
}

// Governor admits or rejects new connections against a global concurrent
// connection ceiling, independent of any per-activity logic. It tracks the
// admitted ids so that the janitor's reconcile sweep and the client's own
// close path can both call Release without double-crediting capacity.
type Governor struct {
	mu        sync.Mutex
	admitted  map[string]struct{}
	ceiling   int
	watermark float64
	logger    *zap.Logger
}

// NewGovernor constructs a governor with the given hard ceiling and soft
// watermark fraction of it.
func NewGovernor(ceiling int, watermark float64, logger *zap.Logger) *Governor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Governor{
		admitted:  make(map[string]struct{}),
		ceiling:   ceiling,
		watermark: watermark,
		logger:    logger,
	}
}

// Admit accepts the connection unless the counter is at the ceiling. The
// caller closes rejected connections immediately.
func (g *Governor) Admit(connectionID string) Admission {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.admitted) >= g.ceiling {
		g.logger.Warn("connection rejected at capacity",
			zap.String("connection_id", connectionID),
			zap.Int("ceiling", g.ceiling))
		return Admission{Accepted: false, Reason: RejectionReasonCapacityFull}
	}
	g.admitted[connectionID] = struct{}{}
	admission := Admission{Accepted: true}
	if float64(len(g.admitted)) >= g.watermark*float64(g.ceiling) {
		admission.Warn = true
		g.logger.Warn("connection count past watermark",
			zap.Int("current", len(g.admitted)),
			zap.Int("ceiling", g.ceiling))
	}
	return admission
}

// Release frees the connection's admission. Repeated releases for the same id
// are no-ops, so overlapping cleanup paths cannot undercount capacity.
func (g *Governor) Release(connectionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.admitted[connectionID]; held {
		delete(g.admitted, connectionID)
		return
	}
	g.logger.Debug("release without matching admit", zap.String("connection_id", connectionID))
}

// Current reports the number of currently admitted connections.
func (g *Governor) Current() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.admitted)
}
