package realtime

import (
	"go.uber.org/zap"
)

// Sender delivers a message to one live connection, reporting false when the
// connection is gone or its buffer is full. The broadcaster treats a failed
// send as "the connection is considered gone" and moves on.
type Sender interface {
	Send(connectionID string, message Message) bool
}

// Broadcaster fans state-change events out to every connection currently in
// an activity's room. There is no delivery guarantee and no replay; a
// disconnected viewer catches up by fetching current state on rejoin.
type Broadcaster struct {
	registry *Registry
	sender   Sender
	logger   *zap.Logger
}

// NewBroadcaster wires the registry's room index to a transport sender.
func NewBroadcaster(registry *Registry, sender Sender, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{registry: registry, sender: sender, logger: logger}
}

// Broadcast delivers the event to the room's members at call time.
func (b *Broadcaster) Broadcast(activityID, event string, payload any) {
	message := Message{Type: event, Data: payload}
	delivered := 0
	for _, connectionID := range b.registry.Connections(activityID) {
		if b.sender.Send(connectionID, message) {
			delivered++
		}
	}
	b.logger.Debug("room broadcast",
		zap.String("activity_id", activityID),
		zap.String("event", event),
		zap.Int("delivered", delivered))
}
