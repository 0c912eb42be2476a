package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/dukerupert/tally/internal/database"
	"github.com/dukerupert/tally/internal/model"
	"github.com/dukerupert/tally/internal/store"
	"github.com/dukerupert/tally/internal/websocket"
)

func setupTableRouter(t *testing.T) (http.Handler, *store.TaskStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ns := store.NewNamespaceStore(db)
	if err := ns.Provision("youbao", "youbao_"); err != nil {
		t.Fatalf("provision: %v", err)
	}

	tasks := store.NewTaskStore(db)
	h := NewTableHandler(TableStores{
		Namespaces: ns,
		Tasks:      tasks,
		Gifts:      store.NewGiftStore(db),
		Records:    store.NewRecordStore(db),
		Requests:   store.NewRequestStore(db),
		Settings:   store.NewSettingsStore(db),
	}, websocket.NewHub(slog.Default()), slog.Default())

	r := chi.NewRouter()
	r.Get("/rest/v1/{table}", h.List)
	r.Post("/rest/v1/{table}", h.Insert)
	r.Put("/rest/v1/{table}", h.Upsert)
	r.Patch("/rest/v1/{table}/{id}", h.Update)
	r.Delete("/rest/v1/{table}/{id}", h.Delete)
	return r, tasks
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestInsertAndListTasks(t *testing.T) {
	h, _ := setupTableRouter(t)

	rec := do(t, h, "POST", "/rest/v1/youbao_tasks", `{"name":"Dishes","score":2,"type":"daily"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var created model.Task
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == 0 || !created.IsEnabled() {
		t.Errorf("created = %+v, want id and enabled", created)
	}

	do(t, h, "POST", "/rest/v1/youbao_tasks", `{"name":"Homework","score":5,"type":"daily"}`)

	rec = do(t, h, "GET", "/rest/v1/youbao_tasks?order=score.desc", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var tasks []model.Task
	json.NewDecoder(rec.Body).Decode(&tasks)
	if len(tasks) != 2 || tasks[0].Name != "Homework" {
		t.Errorf("tasks = %+v, want Homework first", tasks)
	}
}

func TestListEmptyIsArray(t *testing.T) {
	h, _ := setupTableRouter(t)

	rec := do(t, h, "GET", "/rest/v1/youbao_gifts", "")
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestUnknownTable(t *testing.T) {
	h, _ := setupTableRouter(t)

	for _, path := range []string{"/rest/v1/liguo_tasks", "/rest/v1/youbao_users", "/rest/v1/namespaces"} {
		if rec := do(t, h, "GET", path, ""); rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, rec.Code)
		}
	}
}

func TestListBadOrder(t *testing.T) {
	h, _ := setupTableRouter(t)

	for _, q := range []string{"score.sideways", "password.desc"} {
		if rec := do(t, h, "GET", "/rest/v1/youbao_tasks?order="+q, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("order %q: status = %d, want 400", q, rec.Code)
		}
	}
}

func TestInsertValidation(t *testing.T) {
	h, _ := setupTableRouter(t)

	if rec := do(t, h, "POST", "/rest/v1/youbao_tasks", `{"name":"  "}`); rec.Code != http.StatusBadRequest {
		t.Errorf("blank name: status = %d, want 400", rec.Code)
	}
	if rec := do(t, h, "POST", "/rest/v1/youbao_tasks", `not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad json: status = %d, want 400", rec.Code)
	}
}

func TestUpdateTask(t *testing.T) {
	h, tasks := setupTableRouter(t)
	created, err := tasks.Create("youbao_", model.Task{Name: "Read", Score: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rec := do(t, h, "PATCH", "/rest/v1/youbao_tasks/"+itoa(created.ID), `{"score":3,"enabled":false}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	got, _ := tasks.GetByID("youbao_", created.ID)
	if got.Score != 3 || got.IsEnabled() {
		t.Errorf("task = %+v, want score 3 disabled", got)
	}

	if rec := do(t, h, "PATCH", "/rest/v1/youbao_tasks/999", `{"score":1}`); rec.Code != http.StatusNotFound {
		t.Errorf("missing row: status = %d, want 404", rec.Code)
	}
	if rec := do(t, h, "PATCH", "/rest/v1/youbao_tasks/abc", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", rec.Code)
	}
}

func TestRecordsNotUpdatable(t *testing.T) {
	h, _ := setupTableRouter(t)

	if rec := do(t, h, "PATCH", "/rest/v1/youbao_records/1", `{}`); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestDeleteReturnsRows(t *testing.T) {
	h, tasks := setupTableRouter(t)
	created, _ := tasks.Create("youbao_", model.Task{Name: "Sweep"})

	rec := do(t, h, "DELETE", "/rest/v1/youbao_tasks/"+itoa(created.ID), "")
	var deleted []model.Task
	json.NewDecoder(rec.Body).Decode(&deleted)
	if len(deleted) != 1 || deleted[0].Name != "Sweep" {
		t.Errorf("deleted = %+v", deleted)
	}

	rec = do(t, h, "DELETE", "/rest/v1/youbao_tasks/"+itoa(created.ID), "")
	if got := strings.TrimSpace(rec.Body.String()); rec.Code != http.StatusOK || got != "[]" {
		t.Errorf("second delete: %d %q, want 200 []", rec.Code, got)
	}
}

func TestUpsertSettings(t *testing.T) {
	h, _ := setupTableRouter(t)

	rec := do(t, h, "PUT", "/rest/v1/youbao_settings", `{"key":"theme","value":"dark"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first upsert: status = %d, body %s", rec.Code, rec.Body)
	}
	rec = do(t, h, "POST", "/rest/v1/youbao_settings", `{"key":"theme","value":"light"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("second upsert: status = %d", rec.Code)
	}

	rec = do(t, h, "GET", "/rest/v1/youbao_settings", "")
	var settings []model.Setting
	json.NewDecoder(rec.Body).Decode(&settings)
	if len(settings) != 1 || string(settings[0].Value) != `"light"` {
		t.Errorf("settings = %+v", settings)
	}

	if rec := do(t, h, "PUT", "/rest/v1/youbao_settings", `{"key":"theme"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing value: status = %d, want 400", rec.Code)
	}
	if rec := do(t, h, "PUT", "/rest/v1/youbao_tasks", `{}`); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("upsert tasks: status = %d, want 405", rec.Code)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
