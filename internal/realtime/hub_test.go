package realtime

import "testing"

func newBufferedClient(id string, buffer int) *Client {
	return &Client{id: id, send: make(chan Message, buffer)}
}

func TestHubSendQueuesWithoutBlocking(t *testing.T) {
	hub := NewHub(nil)
	client := newBufferedClient("conn-1", 1)
	hub.Attach(client)

	if !hub.Send("conn-1", Message{Type: "rating_added"}) {
		t.Fatalf("expected send to succeed with buffer space")
	}
	// Buffer is full now; the next send must drop instead of blocking.
	if hub.Send("conn-1", Message{Type: "comment_added"}) {
		t.Fatalf("expected send to report drop on full buffer")
	}

	queued := <-client.send
	if queued.Type != "rating_added" {
		t.Fatalf("expected the first message queued, got %q", queued.Type)
	}
}

func TestHubSendToUnknownConnection(t *testing.T) {
	hub := NewHub(nil)
	if hub.Send("conn-missing", Message{Type: "rating_added"}) {
		t.Fatalf("expected send to an unknown connection to fail")
	}
}

func TestHubDetachClosesSendChannel(t *testing.T) {
	hub := NewHub(nil)
	client := newBufferedClient("conn-1", 1)
	hub.Attach(client)
	if hub.ClientCount() != 1 {
		t.Fatalf("expected one attached client, got %d", hub.ClientCount())
	}

	hub.Detach("conn-1")
	if hub.ClientCount() != 0 {
		t.Fatalf("expected no clients after detach, got %d", hub.ClientCount())
	}
	if _, open := <-client.send; open {
		t.Fatalf("expected the send channel closed on detach")
	}

	// A second detach for the same id is a no-op.
	hub.Detach("conn-1")
}

func TestHubLiveConnectionIDs(t *testing.T) {
	hub := NewHub(nil)
	hub.Attach(newBufferedClient("conn-1", 1))
	hub.Attach(newBufferedClient("conn-2", 1))

	live := hub.LiveConnectionIDs()
	if len(live) != 2 {
		t.Fatalf("expected two live connections, got %d", len(live))
	}
	if _, ok := live["conn-1"]; !ok {
		t.Fatalf("expected conn-1 in the live set")
	}
}
