package websocket

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/chorequest/internal/logging"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, familyID int64) *Client {
	return &Client{
		hub:      hub,
		send:     make(chan []byte, sendBufferSize),
		familyID: familyID,
		userID:   familyID * 100,
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(logging.Discard())

	c1 := mockClient(hub, 1)
	c2 := mockClient(hub, 2)
	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}
	hub.Unregister(c1)
	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}
	hub.Unregister(c2)
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestDoubleUnregister(t *testing.T) {
	hub := NewHub(logging.Discard())
	c := mockClient(hub, 1)
	hub.Register(c)
	hub.Unregister(c)
	hub.Unregister(c)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestBroadcastIsFamilyScoped(t *testing.T) {
	hub := NewHub(logging.Discard())

	mine1 := mockClient(hub, 1)
	mine2 := mockClient(hub, 1)
	other := mockClient(hub, 2)
	for _, c := range []*Client{mine1, mine2, other} {
		hub.Register(c)
	}

	hub.Broadcast(1, NewMessage("task", "approved", 42, map[string]any{"assigned_to": float64(7)}))

	for _, c := range []*Client{mine1, mine2} {
		select {
		case data := <-c.send:
			var got Message
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Type != "task_approved" || got.Entity != "task" || got.ID != 42 {
				t.Errorf("message = %+v", got)
			}
			if got.Extra["assigned_to"] != float64(7) {
				t.Errorf("extra = %v", got.Extra)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for message")
		}
	}

	select {
	case data := <-other.send:
		t.Errorf("other family received %s", data)
	default:
	}
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := NewHub(logging.Discard())
	hub.Broadcast(1, NewMessage("chest", "opened", 1, nil))
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(logging.Discard())
	c := mockClient(hub, 1)
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(1, NewMessage("test", "fill", int64(i), nil))
	}
	// Dropped rather than blocking.
	hub.Broadcast(1, NewMessage("test", "dropped", 999, nil))

	if got := len(c.send); got != sendBufferSize {
		t.Errorf("buffered = %d, want %d", got, sendBufferSize)
	}
	hub.Unregister(c)
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("reward", "purchased", 5, nil)
	if msg.Type != "reward_purchased" || msg.Entity != "reward" || msg.Action != "purchased" || msg.ID != 5 {
		t.Errorf("message = %+v", msg)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(logging.Discard())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(fam int64) {
			defer wg.Done()
			c := mockClient(hub, fam)
			hub.Register(c)
			hub.Broadcast(fam, NewMessage("test", "concurrent", 0, nil))
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}(int64(i % 3))
	}
	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}
