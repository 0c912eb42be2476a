package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	ws "github.com/coder/websocket"
)

const (
	reconnectMin = time.Second
	reconnectMax = 30 * time.Second
)

type changeMessage struct {
	Type   string    `json:"type"`
	Entity string    `json:"entity"`
	Action EventType `json:"action"`
	ID     int64     `json:"id"`
}

// subscription owns one websocket connection and its read loop. A dropped
// connection is redialed with backoff until Close or ctx cancellation.
type subscription struct {
	client   *HTTPClient
	table    string
	onChange func(ChangeEvent)

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func (c *HTTPClient) realtimeURL(table string) string {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = c.base.Path + "/realtime/v1"
	u.RawQuery = url.Values{"table": {table}}.Encode()
	return u.String()
}

func (c *HTTPClient) dial(ctx context.Context, table string) (*ws.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.key)

	dialCtx, cancel := context.WithTimeout(ctx, c.httpClient.Timeout)
	defer cancel()

	conn, resp, err := ws.Dial(dialCtx, c.realtimeURL(table), &ws.DialOptions{HTTPHeader: header})
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return nil, &Error{Status: resp.StatusCode, Message: "subscribe " + table}
		}
		return nil, fmt.Errorf("dial realtime %s: %w", table, err)
	}
	return conn, nil
}

// Subscribe opens the change feed for table. The first connection is made
// before returning so an unknown table or bad key fails here.
func (c *HTTPClient) Subscribe(ctx context.Context, table string, onChange func(ChangeEvent)) (Subscription, error) {
	conn, err := c.dial(ctx, table)
	if err != nil {
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s := &subscription{
		client:   c,
		table:    table,
		onChange: onChange,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.run(loopCtx, conn)
	return s, nil
}

func (s *subscription) run(ctx context.Context, conn *ws.Conn) {
	defer close(s.done)
	logger := s.client.logger.With("table", s.table)
	backoff := reconnectMin

	for {
		err := s.readLoop(ctx, conn)
		conn.CloseNow()
		if ctx.Err() != nil {
			return
		}
		logger.Warn("realtime connection lost", "error", err)

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}

			conn, err = s.client.dial(ctx, s.table)
			if err == nil {
				logger.Info("realtime reconnected")
				backoff = reconnectMin
				break
			}
			logger.Warn("realtime reconnect failed", "error", err, "retry_in", backoff)
			backoff = min(backoff*2, reconnectMax)
		}
	}
}

func (s *subscription) readLoop(ctx context.Context, conn *ws.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var msg changeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.client.logger.Warn("bad realtime message", "table", s.table, "error", err)
			continue
		}
		if msg.Entity != "" && msg.Entity != s.table {
			continue
		}
		s.onChange(ChangeEvent{Table: s.table, Type: msg.Action, ID: msg.ID})
	}
}

// Close stops the read loop and waits for it to exit.
func (s *subscription) Close() error {
	s.closeOnce.Do(s.cancel)
	<-s.done
	return nil
}
