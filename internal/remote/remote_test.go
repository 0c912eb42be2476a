package remote

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/tally/internal/database"
	"github.com/dukerupert/tally/internal/model"
	"github.com/dukerupert/tally/internal/server"
	"github.com/dukerupert/tally/internal/users"
)

const testKey = "test-access-key"

func setupBackend(t *testing.T) *HTTPClient {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte(testKey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	srv, err := server.New(db, server.Config{
		Users:     users.DefaultUsers(),
		KeyHashes: []string{string(hash)},
	}, slog.Default())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	c, err := New(Config{URL: ts.URL, AccessKey: testKey})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestNewNotConfigured(t *testing.T) {
	tests := []struct {
		name, url, key string
	}{
		{"empty", "", ""},
		{"no key", "http://localhost:8080", ""},
		{"placeholder url", PlaceholderURL, "abc"},
		{"placeholder key", "http://localhost:8080", PlaceholderKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(Config{URL: tt.url, AccessKey: tt.key}); !errors.Is(err, ErrNotConfigured) {
				t.Errorf("err = %v, want ErrNotConfigured", err)
			}
		})
	}
}

func TestNewBadURL(t *testing.T) {
	for _, u := range []string{"://nope", "ftp://host", "http://"} {
		_, err := New(Config{URL: u, AccessKey: "k"})
		if err == nil || errors.Is(err, ErrNotConfigured) {
			t.Errorf("url %q: err = %v, want parse error", u, err)
		}
	}
}

func TestInsertSelectOrdered(t *testing.T) {
	c := setupBackend(t)
	ctx := context.Background()

	for _, task := range []model.Task{
		{Name: "Read", Score: 1, Type: "daily"},
		{Name: "Clean room", Score: 5, Type: "weekly"},
		{Name: "Dishes", Score: 3, Type: "daily"},
	} {
		row, err := c.Insert(ctx, "youbao_tasks", task)
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		var got model.Task
		json.Unmarshal(row, &got)
		if got.ID == 0 {
			t.Errorf("inserted row has no id: %s", row)
		}
	}

	rows, err := c.Select(ctx, "youbao_tasks", Desc("type"), Desc("score"))
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	var names []string
	for _, r := range rows {
		var task model.Task
		json.Unmarshal(r, &task)
		names = append(names, task.Name)
	}
	want := []string{"Clean room", "Dishes", "Read"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names = %v, want %v", names, want)
			break
		}
	}
}

func TestSelectUnknownTable(t *testing.T) {
	c := setupBackend(t)

	_, err := c.Select(context.Background(), "ghost_tasks")
	var remoteErr *Error
	if !errors.As(err, &remoteErr) || remoteErr.Status != http.StatusNotFound {
		t.Fatalf("err = %v, want 404 *Error", err)
	}
}

func TestWrongKey(t *testing.T) {
	c := setupBackend(t)
	c.key = "wrong"

	_, err := c.Select(context.Background(), "youbao_tasks")
	var remoteErr *Error
	if !errors.As(err, &remoteErr) || remoteErr.Status != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401 *Error", err)
	}
}

func TestUpdateDeleteUpsert(t *testing.T) {
	c := setupBackend(t)
	ctx := context.Background()

	row, err := c.Insert(ctx, "liguo_gifts", model.Gift{Name: "Kite", Score: 10})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	var gift model.Gift
	json.Unmarshal(row, &gift)

	if err := c.Update(ctx, "liguo_gifts", gift.ID, map[string]any{"score": 12}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := c.Update(ctx, "liguo_gifts", 9999, map[string]any{"score": 1}); err == nil {
		t.Error("update of missing row should fail")
	}

	deleted, err := c.Delete(ctx, "liguo_gifts", gift.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(deleted) != 1 {
		t.Fatalf("deleted %d rows, want 1", len(deleted))
	}
	json.Unmarshal(deleted[0], &gift)
	if gift.Score != 12 {
		t.Errorf("deleted score = %v, want 12", gift.Score)
	}

	deleted, err = c.Delete(ctx, "liguo_gifts", gift.ID)
	if err != nil || len(deleted) != 0 {
		t.Errorf("second delete = %v, %v; want empty", deleted, err)
	}

	setting := model.Setting{Key: "theme", Value: json.RawMessage(`"dark"`)}
	if err := c.Upsert(ctx, "liguo_settings", setting); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	rows, err := c.Select(ctx, "liguo_settings")
	if err != nil || len(rows) != 1 {
		t.Fatalf("settings = %v, %v", rows, err)
	}
}

func TestSubscribeReceivesChanges(t *testing.T) {
	c := setupBackend(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events := make(chan ChangeEvent, 4)
	sub, err := c.Subscribe(ctx, "youbao_records", func(e ChangeEvent) { events <- e })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	// Give the server a moment to register the subscriber.
	time.Sleep(50 * time.Millisecond)

	if _, err := c.Insert(ctx, "liguo_records", model.RecordRow{TaskName: "other", Date: time.Now()}); err != nil {
		t.Fatalf("insert other: %v", err)
	}
	if _, err := c.Insert(ctx, "youbao_records", model.RecordRow{TaskName: "mine", Score: 2, Date: time.Now()}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	select {
	case e := <-events:
		if e.Table != "youbao_records" || e.Type != EventInsert {
			t.Errorf("event = %+v", e)
		}
	case <-ctx.Done():
		t.Fatal("timeout waiting for change event")
	}

	select {
	case e := <-events:
		t.Errorf("unexpected extra event %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeUnknownTable(t *testing.T) {
	c := setupBackend(t)

	_, err := c.Subscribe(context.Background(), "ghost_records", func(ChangeEvent) {})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSubscriptionCloseStopsLoop(t *testing.T) {
	c := setupBackend(t)

	sub, err := c.Subscribe(context.Background(), "youbao_tasks", func(ChangeEvent) {})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	done := make(chan struct{})
	go func() {
		sub.Close()
		sub.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}
