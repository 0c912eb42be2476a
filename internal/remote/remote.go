// Package remote talks to the relational backend: row selection, writes and
// the per-table change feed.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfigured means no usable backend URL or access key was supplied.
var ErrNotConfigured = errors.New("remote backend not configured")

// Template values shipped in the sample config. They count as unset.
const (
	PlaceholderURL = "YOUR_BACKEND_URL"
	PlaceholderKey = "YOUR_ACCESS_KEY"
)

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

func Asc(column string) Order  { return Order{Column: column} }
func Desc(column string) Order { return Order{Column: column, Desc: true} }

func (o Order) String() string {
	if o.Desc {
		return o.Column + ".desc"
	}
	return o.Column + ".asc"
}

func encodeOrders(orders []Order) string {
	terms := make([]string, len(orders))
	for i, o := range orders {
		terms[i] = o.String()
	}
	return strings.Join(terms, ",")
}

// EventType is the kind of row change reported by the change feed.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// ChangeEvent is one notification received on a subscription.
type ChangeEvent struct {
	Table string
	Type  EventType
	ID    int64
}

// Subscription is a live change feed for one table.
type Subscription interface {
	Close() error
}

// Client is the remote data API. Rows travel as raw JSON so callers decode
// into their own shapes.
type Client interface {
	Select(ctx context.Context, table string, orders ...Order) ([]json.RawMessage, error)
	Insert(ctx context.Context, table string, record any) (json.RawMessage, error)
	Update(ctx context.Context, table string, id int64, patch any) error
	Delete(ctx context.Context, table string, id int64) ([]json.RawMessage, error)
	Upsert(ctx context.Context, table string, record any) error
	Subscribe(ctx context.Context, table string, onChange func(ChangeEvent)) (Subscription, error)
}

// Error is a non-2xx backend response.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote: status %d: %s", e.Status, e.Message)
}

// Configured reports whether url and key look like real credentials.
func Configured(url, key string) bool {
	url, key = strings.TrimSpace(url), strings.TrimSpace(key)
	if url == "" || key == "" {
		return false
	}
	return url != PlaceholderURL && key != PlaceholderKey &&
		!strings.HasPrefix(url, "YOUR_") && !strings.HasPrefix(key, "YOUR_")
}
