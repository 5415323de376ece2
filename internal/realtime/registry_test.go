package realtime

import (
	"sync"
	"testing"
)

func TestRegistryRecordJoinIsIdempotentPerConnection(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register("conn-1")

	if !registry.RecordJoin("conn-1", "act-1", "user-1") {
		t.Fatalf("expected the first join to report a new membership")
	}
	if registry.RecordJoin("conn-1", "act-1", "user-1") {
		t.Fatalf("expected the duplicate join to report no new membership")
	}

	if got := registry.RoomMembers("act-1"); got != 1 {
		t.Fatalf("duplicate join must not double-count, got %d members", got)
	}
	if got := registry.ConnectionUser("conn-1"); got != "user-1" {
		t.Fatalf("expected user recorded, got %q", got)
	}
}

func TestRegistryRecordJoinWithoutRegister(t *testing.T) {
	registry := NewRegistry(nil)

	// A join racing ahead of Register still lands.
	registry.RecordJoin("conn-1", "act-1", "user-1")
	if got := registry.RoomMembers("act-1"); got != 1 {
		t.Fatalf("expected implicit registration on join, got %d members", got)
	}
}

func TestRegistryLeaveAndUnregister(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register("conn-1")
	registry.Register("conn-2")
	registry.RecordJoin("conn-1", "act-1", "user-1")
	registry.RecordJoin("conn-2", "act-1", "user-2")
	registry.RecordJoin("conn-1", "act-2", "user-1")

	registry.RecordLeave("conn-1", "act-1")
	if got := registry.Connections("act-1"); len(got) != 1 || got[0] != "conn-2" {
		t.Fatalf("expected only conn-2 in act-1, got %v", got)
	}
	if got := registry.Activities("conn-1"); len(got) != 1 || got[0] != "act-2" {
		t.Fatalf("expected conn-1 to keep act-2, got %v", got)
	}

	registry.Unregister("conn-1")
	if got := registry.RoomMembers("act-2"); got != 0 {
		t.Fatalf("unregister must vacate every room, got %d members", got)
	}
	if got := registry.ConnectionUser("conn-1"); got != "" {
		t.Fatalf("expected no user after unregister, got %q", got)
	}
	if got := registry.Activities("conn-1"); got != nil {
		t.Fatalf("expected nil activities after unregister, got %v", got)
	}
}

func TestRegistryPruneEmptyRooms(t *testing.T) {
	registry := NewRegistry(nil)
	registry.RecordJoin("conn-1", "act-1", "user-1")
	registry.RecordJoin("conn-2", "act-2", "user-2")
	registry.RecordLeave("conn-1", "act-1")

	// Empty room entries survive until pruned.
	if got := registry.ActivityCount(); got != 2 {
		t.Fatalf("expected the empty room entry kept, count %d", got)
	}
	if pruned := registry.PruneEmptyRooms(); pruned != 1 {
		t.Fatalf("expected one room pruned, got %d", pruned)
	}
	if got := registry.ActivityCount(); got != 1 {
		t.Fatalf("expected one room left, got %d", got)
	}
}

func TestRegistryConnectionsStableOrder(t *testing.T) {
	registry := NewRegistry(nil)
	registry.RecordJoin("conn-c", "act-1", "user-c")
	registry.RecordJoin("conn-a", "act-1", "user-a")
	registry.RecordJoin("conn-b", "act-1", "user-b")

	got := registry.Connections("act-1")
	expected := []string{"conn-a", "conn-b", "conn-c"}
	if len(got) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("expected sorted order %v, got %v", expected, got)
		}
	}
}

type recordingSender struct {
	mu       sync.Mutex
	sent     map[string][]Message
	rejected map[string]bool
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: map[string][]Message{}, rejected: map[string]bool{}}
}

func (s *recordingSender) Send(connectionID string, message Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejected[connectionID] {
		return false
	}
	s.sent[connectionID] = append(s.sent[connectionID], message)
	return true
}

func TestBroadcasterFansOutToRoomOnly(t *testing.T) {
	registry := NewRegistry(nil)
	sender := newRecordingSender()
	broadcaster := NewBroadcaster(registry, sender, nil)

	registry.RecordJoin("conn-1", "act-1", "user-1")
	registry.RecordJoin("conn-2", "act-1", "user-2")
	registry.RecordJoin("conn-3", "act-2", "user-3")

	broadcaster.Broadcast("act-1", "rating_added", map[string]string{"id": "r-1"})

	if len(sender.sent["conn-1"]) != 1 || len(sender.sent["conn-2"]) != 1 {
		t.Fatalf("expected both room members to receive the event, got %+v", sender.sent)
	}
	if len(sender.sent["conn-3"]) != 0 {
		t.Fatalf("connections outside the room must not receive the event")
	}
	if sender.sent["conn-1"][0].Type != "rating_added" {
		t.Fatalf("expected event type preserved, got %q", sender.sent["conn-1"][0].Type)
	}
}

func TestBroadcasterToleratesDeadConnections(t *testing.T) {
	registry := NewRegistry(nil)
	sender := newRecordingSender()
	sender.rejected["conn-dead"] = true
	broadcaster := NewBroadcaster(registry, sender, nil)

	registry.RecordJoin("conn-dead", "act-1", "user-1")
	registry.RecordJoin("conn-live", "act-1", "user-2")

	broadcaster.Broadcast("act-1", "comment_added", nil)

	if len(sender.sent["conn-live"]) != 1 {
		t.Fatalf("a dead connection must not block delivery to live ones")
	}
}
