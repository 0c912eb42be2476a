package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dukerupert/tally/internal/store"
	"github.com/dukerupert/tally/internal/websocket"
)

// TableHandler serves the REST verbs for every namespaced table. The table
// path parameter is resolved against provisioned namespaces before any store
// is touched.
type TableHandler struct {
	namespaces  *store.NamespaceStore
	collections map[string]collection
	hub         *websocket.Hub
	logger      *slog.Logger
}

type TableStores struct {
	Namespaces *store.NamespaceStore
	Tasks      *store.TaskStore
	Gifts      *store.GiftStore
	Records    *store.RecordStore
	Requests   *store.RequestStore
	Settings   *store.SettingsStore
}

func NewTableHandler(s TableStores, hub *websocket.Hub, logger *slog.Logger) *TableHandler {
	return &TableHandler{
		namespaces: s.Namespaces,
		collections: map[string]collection{
			"tasks":    taskCollection(s.Tasks),
			"gifts":    giftCollection(s.Gifts),
			"records":  recordCollection(s.Records),
			"requests": requestCollection(s.Requests),
			"settings": settingsCollection(s.Settings),
		},
		hub:    hub,
		logger: logger,
	}
}

func (h *TableHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

// resolve writes the error response itself and returns ok=false when the
// request cannot proceed.
func (h *TableHandler) resolve(w http.ResponseWriter, r *http.Request) (table, prefix string, c collection, ok bool) {
	table = chi.URLParam(r, "table")
	prefix, name, found, err := h.namespaces.Resolve(table)
	if err != nil {
		h.logger.Error("resolve table", "table", table, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to resolve table")
		return "", "", collection{}, false
	}
	if !found {
		writeError(w, http.StatusNotFound, "unknown table "+table)
		return "", "", collection{}, false
	}
	return table, prefix, h.collections[name], true
}

func (h *TableHandler) fail(w http.ResponseWriter, op, table string, err error) {
	var bad *badRequestError
	if errors.As(err, &bad) {
		writeError(w, http.StatusBadRequest, bad.msg)
		return
	}
	h.logger.Error(op, "table", table, "error", err)
	writeError(w, http.StatusInternalServerError, op+" failed")
}

func (h *TableHandler) List(w http.ResponseWriter, r *http.Request) {
	table, prefix, c, ok := h.resolve(w, r)
	if !ok {
		return
	}

	orders, err := store.ParseOrder(r.URL.Query().Get("order"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := c.list(prefix, orders)
	if err != nil {
		// Unknown order columns come back from the store as plain errors.
		h.logger.Warn("list table", "table", table, "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *TableHandler) Insert(w http.ResponseWriter, r *http.Request) {
	table, prefix, c, ok := h.resolve(w, r)
	if !ok {
		return
	}

	// Settings are keyed, so POST behaves like PUT.
	if c.insert == nil && c.upsert != nil {
		h.upsert(w, r, table, prefix, c)
		return
	}
	if c.insert == nil {
		writeError(w, http.StatusMethodNotAllowed, "insert not supported on "+table)
		return
	}

	row, id, err := c.insert(prefix, r.Body)
	if err != nil {
		h.fail(w, "insert", table, err)
		return
	}

	h.broadcast(websocket.NewMessage(table, websocket.ActionInsert, id))
	writeJSON(w, http.StatusCreated, row)
}

func (h *TableHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	table, prefix, c, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if c.upsert == nil {
		writeError(w, http.StatusMethodNotAllowed, "upsert not supported on "+table)
		return
	}
	h.upsert(w, r, table, prefix, c)
}

func (h *TableHandler) upsert(w http.ResponseWriter, r *http.Request, table, prefix string, c collection) {
	key, created, err := c.upsert(prefix, r.Body)
	if err != nil {
		h.fail(w, "upsert", table, err)
		return
	}

	msg := websocket.NewMessage(table, websocket.ActionUpdate, 0)
	status := http.StatusOK
	if created {
		msg = websocket.NewMessage(table, websocket.ActionInsert, 0)
		status = http.StatusCreated
	}
	msg.Key = key
	h.broadcast(msg)
	writeJSON(w, status, map[string]string{"key": key})
}

func (h *TableHandler) Update(w http.ResponseWriter, r *http.Request) {
	table, prefix, c, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if c.update == nil {
		writeError(w, http.StatusMethodNotAllowed, "update not supported on "+table)
		return
	}

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	found, err := c.update(prefix, id, r.Body)
	if err != nil {
		h.fail(w, "update", table, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "row not found")
		return
	}

	h.broadcast(websocket.NewMessage(table, websocket.ActionUpdate, id))
	w.WriteHeader(http.StatusNoContent)
}

// Delete answers with the array of deleted rows, empty when nothing matched.
func (h *TableHandler) Delete(w http.ResponseWriter, r *http.Request) {
	table, prefix, c, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if c.remove == nil {
		writeError(w, http.StatusMethodNotAllowed, "delete not supported on "+table)
		return
	}

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	row, found, err := c.remove(prefix, id)
	if err != nil {
		h.fail(w, "delete", table, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, []any{})
		return
	}

	h.broadcast(websocket.NewMessage(table, websocket.ActionDelete, id))
	writeJSON(w, http.StatusOK, []any{row})
}
