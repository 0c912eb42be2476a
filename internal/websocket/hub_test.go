package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, table string) *Client {
	return &Client{
		id:    "test-" + table,
		hub:   hub,
		conn:  nil,
		table: table,
		send:  make(chan []byte, sendBufferSize),
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, "youbao_tasks")
	c2 := mockClient(hub, "youbao_gifts")

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
	hub := NewHub(slog.Default())
	c := mockClient(hub, "")
	hub.Register(c)
	hub.Unregister(c)
	// Should not panic
	hub.Unregister(c)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestBroadcastFiltersByTable(t *testing.T) {
	hub := NewHub(slog.Default())

	tasks := mockClient(hub, "youbao_tasks")
	other := mockClient(hub, "liguo_tasks")
	hub.Register(tasks)
	hub.Register(other)

	hub.Broadcast(NewMessage("youbao_tasks", ActionInsert, 42))

	for _, c := range []*Client{tasks} {
		select {
		case data := <-c.send:
			var got Message
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Entity != "youbao_tasks" {
				t.Errorf("expected entity youbao_tasks, got %s", got.Entity)
			}
			if got.Action != ActionInsert {
				t.Errorf("expected action INSERT, got %s", got.Action)
			}
			if got.ID != 42 {
				t.Errorf("expected id 42, got %d", got.ID)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("timeout waiting for message on %s", c.table)
		}
	}

	select {
	case <-other.send:
		t.Error("other namespace should not receive the change")
	default:
	}
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := NewHub(slog.Default())
	// Should not panic
	hub.Broadcast(NewMessage("youbao_records", ActionDelete, 1))
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub, "youbao_records")
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(NewMessage("youbao_records", ActionInsert, int64(i)))
	}

	// This should drop the message, not panic or block
	hub.Broadcast(NewMessage("youbao_records", ActionInsert, 999))

	count := 0
	for {
		select {
		case <-c.send:
			count++
		default:
			goto done
		}
	}
done:
	if count != sendBufferSize {
		t.Errorf("expected %d messages, got %d", sendBufferSize, count)
	}

	hub.Unregister(c)
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("youbao_gifts", ActionUpdate, 5)
	if msg.Type != "youbao_gifts_UPDATE" {
		t.Errorf("expected type youbao_gifts_UPDATE, got %s", msg.Type)
	}
	if msg.Entity != "youbao_gifts" {
		t.Errorf("expected entity youbao_gifts, got %s", msg.Entity)
	}
	if msg.ID != 5 {
		t.Errorf("expected id 5, got %d", msg.ID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub, "youbao_tasks")
			hub.Register(c)
			hub.Broadcast(NewMessage("youbao_tasks", ActionUpdate, 0))
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}()
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}
