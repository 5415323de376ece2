package realtime

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry is the process-local map from live connection to its user and
// joined activities, plus the reverse room index used for fan-out. It is
// advisory and ephemeral: it only manipulates local memory, is never the
// source of truth for participation, and can be rebuilt from live transport
// state plus incoming join events.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*connectionState
	rooms  map[string]map[string]struct{}
	logger *zap.Logger
}

type connectionState struct {
	userID     string
	activities map[string]struct{}
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		conns:  make(map[string]*connectionState),
		rooms:  make(map[string]map[string]struct{}),
		logger: logger,
	}
}

// Register adds a newly admitted connection with no user or rooms yet.
func (r *Registry) Register(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conns[connectionID]; exists {
		return
	}
	r.conns[connectionID] = &connectionState{activities: make(map[string]struct{})}
}

// Unregister removes the connection and its room memberships.
func (r *Registry) Unregister(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, exists := r.conns[connectionID]
	if !exists {
		return
	}
	for activityID := range state.activities {
		r.dropFromRoom(activityID, connectionID)
	}
	delete(r.conns, connectionID)
}

// RecordJoin associates the connection with an activity room and its user,
// reporting whether a new membership was added. A duplicate join from the
// same connection is a logged no-op so the room never double-counts one
// transport; callers use the return to roll back only memberships they
// actually created.
func (r *Registry) RecordJoin(connectionID, activityID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, exists := r.conns[connectionID]
	if !exists {
		state = &connectionState{activities: make(map[string]struct{})}
		r.conns[connectionID] = state
	}
	state.userID = userID
	if _, joined := state.activities[activityID]; joined {
		r.logger.Debug("duplicate room join ignored",
			zap.String("connection_id", connectionID),
			zap.String("activity_id", activityID))
		return false
	}
	state.activities[activityID] = struct{}{}
	room, ok := r.rooms[activityID]
	if !ok {
		room = make(map[string]struct{})
		r.rooms[activityID] = room
	}
	room[connectionID] = struct{}{}
	return true
}

// RecordLeave detaches the connection from an activity room.
func (r *Registry) RecordLeave(connectionID, activityID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, exists := r.conns[connectionID]
	if !exists {
		return
	}
	delete(state.activities, activityID)
	r.dropFromRoom(activityID, connectionID)
}

// Connections returns the room's connection ids in a stable order.
func (r *Registry) Connections(activityID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.rooms[activityID]
	ids := make([]string, 0, len(room))
	for id := range room {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Activities returns the activity ids the connection has joined.
func (r *Registry) Activities(connectionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, exists := r.conns[connectionID]
	if !exists {
		return nil
	}
	ids := make([]string, 0, len(state.activities))
	for id := range state.activities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ConnectionUser returns the user recorded for a connection, empty before
// any join occurred.
func (r *Registry) ConnectionUser(connectionID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, exists := r.conns[connectionID]
	if !exists {
		return ""
	}
	return state.userID
}

// RoomMembers reports how many connections are attached to the activity.
func (r *Registry) RoomMembers(activityID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[activityID])
}

// ConnectionIDs returns every registered connection id.
func (r *Registry) ConnectionIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ActivityCount reports how many rooms currently hold at least one connection.
func (r *Registry) ActivityCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// PruneEmptyRooms drops room entries left with zero members, returning how
// many were removed.
func (r *Registry) PruneEmptyRooms() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	pruned := 0
	for activityID, room := range r.rooms {
		if len(room) == 0 {
			delete(r.rooms, activityID)
			pruned++
		}
	}
	return pruned
}

// dropFromRoom removes the connection from a room; callers hold the lock.
// The empty room entry is kept for the janitor to prune so short-lived
// rejoin churn does not thrash the map.
func (r *Registry) dropFromRoom(activityID, connectionID string) {
	room, ok := r.rooms[activityID]
	if !ok {
		return
	}
	delete(room, connectionID)
}
