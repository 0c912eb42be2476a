package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config holds backend connection settings.
type Config struct {
	URL       string
	AccessKey string
	Timeout   time.Duration
	Logger    *slog.Logger
}

// HTTPClient implements Client over the REST and realtime endpoints.
type HTTPClient struct {
	base       *url.URL
	key        string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Client = (*HTTPClient)(nil)

// New validates cfg and returns a client. It returns ErrNotConfigured for
// empty or placeholder credentials; callers treat that as local-only mode.
func New(cfg Config) (*HTTPClient, error) {
	if !Configured(cfg.URL, cfg.AccessKey) {
		return nil, ErrNotConfigured
	}

	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.URL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("parse backend url: unsupported scheme %q", base.Scheme)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("parse backend url: missing host in %q", cfg.URL)
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &HTTPClient{
		base:       base,
		key:        strings.TrimSpace(cfg.AccessKey),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     cfg.Logger,
	}, nil
}

func (c *HTTPClient) tableURL(table string, id *int64) string {
	u := *c.base
	u.Path = c.base.Path + "/rest/v1/" + url.PathEscape(table)
	if id != nil {
		u.Path += "/" + strconv.FormatInt(*id, 10)
	}
	return u.String()
}

func (c *HTTPClient) do(ctx context.Context, method, target string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb struct {
			Error string `json:"error"`
		}
		msg := http.StatusText(resp.StatusCode)
		if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
			msg = eb.Error
		}
		return nil, &Error{Status: resp.StatusCode, Message: msg}
	}
	return data, nil
}

func (c *HTTPClient) Select(ctx context.Context, table string, orders ...Order) ([]json.RawMessage, error) {
	target := c.tableURL(table, nil)
	if len(orders) > 0 {
		target += "?" + url.Values{"order": {encodeOrders(orders)}}.Encode()
	}

	data, err := c.do(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode %s rows: %w", table, err)
	}
	if rows == nil {
		rows = []json.RawMessage{}
	}
	return rows, nil
}

// Insert returns the row as stored by the backend, including its new id.
func (c *HTTPClient) Insert(ctx context.Context, table string, record any) (json.RawMessage, error) {
	data, err := c.do(ctx, http.MethodPost, c.tableURL(table, nil), record)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

func (c *HTTPClient) Update(ctx context.Context, table string, id int64, patch any) error {
	_, err := c.do(ctx, http.MethodPatch, c.tableURL(table, &id), patch)
	return err
}

// Delete returns the deleted rows; an empty slice means nothing matched.
func (c *HTTPClient) Delete(ctx context.Context, table string, id int64) ([]json.RawMessage, error) {
	data, err := c.do(ctx, http.MethodDelete, c.tableURL(table, &id), nil)
	if err != nil {
		return nil, err
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode deleted %s rows: %w", table, err)
	}
	return rows, nil
}

func (c *HTTPClient) Upsert(ctx context.Context, table string, record any) error {
	_, err := c.do(ctx, http.MethodPut, c.tableURL(table, nil), record)
	return err
}
