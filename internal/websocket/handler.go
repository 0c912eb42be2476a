package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
)

// TableAuthorizer reports whether a table may be subscribed to.
type TableAuthorizer func(table string) bool

// HandleWebSocket returns an HTTP handler that upgrades connections to
// WebSocket and subscribes them to the table named by the "table" query
// parameter. The parameter is required.
func HandleWebSocket(hub *Hub, allowed TableAuthorizer, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		table := r.URL.Query().Get("table")
		if table == "" {
			http.Error(w, "table is required", http.StatusBadRequest)
			return
		}
		if allowed != nil && !allowed(table) {
			http.Error(w, "unknown table", http.StatusNotFound)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // household LAN clients, auth is the bearer key
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}

		client := NewClient(hub, conn, table)
		client.Run(r.Context())
	}
}
