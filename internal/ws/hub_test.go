package ws

import (
	"encoding/json"
	"testing"
	"time"
)

func newTestClient(userID uint, email string) *Client {
	return &Client{send: make(chan []byte, 256), userID: userID, email: email}
}

type frame struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

func recvFrame(t *testing.T, c *Client) frame {
	t.Helper()
	select {
	case b, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		var f frame
		if err := json.Unmarshal(b, &f); err != nil {
			t.Fatalf("invalid frame: %v", err)
		}
		return f
	case <-time.After(100 * time.Millisecond):
		t.Fatal("no frame received")
	}
	return frame{}
}

func expectNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case b := <-c.send:
		t.Fatalf("unexpected frame: %s", b)
	default:
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub()
	c := newTestClient(1, "a@example.com")

	hub.Register(c, 1, "a@example.com")
	if hub.RoomOf(c) != 0 {
		t.Errorf("RoomOf() after register = %d, want 0", hub.RoomOf(c))
	}

	roomID, ok := hub.Unregister(c)
	if !ok {
		t.Fatal("Unregister() ok = false, want true")
	}
	if roomID != 0 {
		t.Errorf("Unregister() roomID = %d, want 0", roomID)
	}

	// Second unregister is a no-op
	if _, ok := hub.Unregister(c); ok {
		t.Error("Unregister() on removed client should return false")
	}
}

func TestHub_Unregister_ReturnsBoundRoom(t *testing.T) {
	hub := NewHub()
	c := newTestClient(1, "a@example.com")
	hub.Register(c, 1, "a@example.com")
	hub.Bind(c, 10)

	roomID, ok := hub.Unregister(c)
	if !ok || roomID != 10 {
		t.Errorf("Unregister() = (%d, %v), want (10, true)", roomID, ok)
	}
}

func TestHub_BindReturnsPrevious(t *testing.T) {
	hub := NewHub()
	c := newTestClient(1, "a@example.com")
	hub.Register(c, 1, "a@example.com")

	if prev := hub.Bind(c, 10); prev != 0 {
		t.Errorf("Bind() prev = %d, want 0", prev)
	}
	if prev := hub.Bind(c, 20); prev != 10 {
		t.Errorf("Bind() prev = %d, want 10", prev)
	}
	if prev := hub.Unbind(c); prev != 20 {
		t.Errorf("Unbind() prev = %d, want 20", prev)
	}
	if hub.RoomOf(c) != 0 {
		t.Errorf("RoomOf() after unbind = %d, want 0", hub.RoomOf(c))
	}
}

func TestHub_Online(t *testing.T) {
	hub := NewHub()
	if hub.Online(10) != 0 {
		t.Errorf("Online() for empty room = %d, want 0", hub.Online(10))
	}

	a := newTestClient(1, "a@example.com")
	b := newTestClient(2, "b@example.com")
	hub.Register(a, 1, "a@example.com")
	hub.Register(b, 2, "b@example.com")
	hub.Bind(a, 10)
	hub.Bind(b, 10)

	if hub.Online(10) != 2 {
		t.Errorf("Online() = %d, want 2", hub.Online(10))
	}
	hub.Unbind(a)
	if hub.Online(10) != 1 {
		t.Errorf("Online() after unbind = %d, want 1", hub.Online(10))
	}
}

func TestHub_ToRoom_OnlyBoundClients(t *testing.T) {
	hub := NewHub()
	a := newTestClient(1, "a@example.com")
	b := newTestClient(2, "b@example.com")
	other := newTestClient(3, "c@example.com")
	hub.Register(a, 1, "a@example.com")
	hub.Register(b, 2, "b@example.com")
	hub.Register(other, 3, "c@example.com")
	hub.Bind(a, 10)
	hub.Bind(b, 10)
	hub.Bind(other, 20)

	hub.ToRoom(10, ErrorEvent("test"))

	recvFrame(t, a)
	recvFrame(t, b)
	expectNoFrame(t, other)
}

func TestHub_ToRoomExcept(t *testing.T) {
	hub := NewHub()
	a := newTestClient(1, "a@example.com")
	b := newTestClient(2, "b@example.com")
	hub.Register(a, 1, "a@example.com")
	hub.Register(b, 2, "b@example.com")
	hub.Bind(a, 10)
	hub.Bind(b, 10)

	hub.ToRoomExcept(a, 10, ErrorEvent("test"))

	expectNoFrame(t, a)
	recvFrame(t, b)
}

func TestHub_ToAll_ReachesUnboundClients(t *testing.T) {
	hub := NewHub()
	a := newTestClient(1, "a@example.com")
	b := newTestClient(2, "b@example.com")
	hub.Register(a, 1, "a@example.com")
	hub.Register(b, 2, "b@example.com")
	hub.Bind(a, 10)
	// b has not joined any room

	hub.ToAll(MatchCreatedEvent(10, UserRef{ID: 1, Email: "a@example.com"}, UserRef{ID: 2, Email: "b@example.com"}, time.Now().Add(time.Hour)))

	if f := recvFrame(t, a); f.Event != EvtMatchCreated {
		t.Errorf("event = %q, want %q", f.Event, EvtMatchCreated)
	}
	if f := recvFrame(t, b); f.Event != EvtMatchCreated {
		t.Errorf("event = %q, want %q", f.Event, EvtMatchCreated)
	}
}

func TestHub_SlowClientEvicted(t *testing.T) {
	hub := NewHub()
	slow := &Client{send: make(chan []byte), userID: 1, email: "a@example.com"} // no buffer
	hub.Register(slow, 1, "a@example.com")
	hub.Bind(slow, 10)

	hub.ToRoom(10, ErrorEvent("test"))

	if _, ok := hub.Unregister(slow); ok {
		t.Error("slow client should have been evicted by deliver")
	}
}

func TestHub_ConcurrentRegister(t *testing.T) {
	hub := NewHub()
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(id uint) {
			c := newTestClient(id, "user@example.com")
			hub.Register(c, id, "user@example.com")
			hub.Bind(c, 10)
			done <- struct{}{}
		}(uint(i + 1))
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	if hub.Online(10) != 10 {
		t.Errorf("Online() after concurrent register = %d, want 10", hub.Online(10))
	}
	close(done)
}
