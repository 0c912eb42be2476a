package cloudsync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dukerupert/tally/internal/model"
)

type taskFields struct {
	Name    string  `json:"name"`
	Unit    string  `json:"unit"`
	Score   float64 `json:"score"`
	Type    string  `json:"type"`
	Enabled *bool   `json:"enabled,omitempty"`
}

type giftFields struct {
	Name    string  `json:"name"`
	Image   *string `json:"image"`
	Score   float64 `json:"score"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// giftUpdate always carries image; an empty string clears it.
type giftUpdate struct {
	Name    string  `json:"name"`
	Image   string  `json:"image"`
	Score   float64 `json:"score"`
	Enabled *bool   `json:"enabled,omitempty"`
}

type statusPatch struct {
	Status model.RequestStatus `json:"status"`
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalRef(id *int64) *int64 {
	if id == nil || *id == 0 {
		return nil
	}
	return id
}

// insert pushes payload and decodes the stored row into R. On any failure
// the caller's input is handed back unchanged.
func insert[R, L any](ctx context.Context, c *Coordinator, collection string, payload any, convert func(R) L, fallback L) L {
	if c.remote == nil {
		return fallback
	}

	table := c.ns.Table(collection)
	raw, err := c.remote.Insert(ctx, table, payload)
	if err != nil {
		c.logger.Error("push insert failed", "table", table, "error", err)
		return fallback
	}

	var row R
	if err := json.Unmarshal(raw, &row); err != nil {
		c.logger.Error("decode inserted row", "table", table, "error", err)
		return fallback
	}
	c.logger.Debug("pushed insert", "table", table)
	return convert(row)
}

func (c *Coordinator) update(ctx context.Context, collection string, id int64, patch any) {
	if c.remote == nil || id == 0 {
		return
	}

	table := c.ns.Table(collection)
	if err := c.remote.Update(ctx, table, id, patch); err != nil {
		c.logger.Error("push update failed", "table", table, "id", id, "error", err)
		return
	}
	c.logger.Debug("pushed update", "table", table, "id", id)
}

// remove deletes one row inside the local operation window.
func (c *Coordinator) remove(ctx context.Context, collection string, id int64) ([]json.RawMessage, error) {
	if c.remote == nil {
		return nil, nil
	}
	if id == 0 {
		return nil, fmt.Errorf("delete %s: %w", collection, ErrMissingID)
	}

	table := c.ns.Table(collection)
	c.beginLocalOp()
	rows, err := c.remote.Delete(ctx, table, id)
	c.endLocalOp(err == nil)
	if err != nil {
		c.logger.Error("push delete failed", "table", table, "id", id, "error", err)
		return nil, fmt.Errorf("delete %s %d: %w", collection, id, err)
	}
	c.logger.Debug("pushed delete", "table", table, "id", id, "rows", len(rows))
	return rows, nil
}

func identity[T any](v T) T { return v }

// AddTask returns the stored task with its backend id, or t itself when the
// push fails or sync is disabled.
func (c *Coordinator) AddTask(ctx context.Context, t model.Task) model.Task {
	return insert(ctx, c, "tasks", taskFields{
		Name:    t.Name,
		Unit:    t.Unit,
		Score:   t.Score,
		Type:    t.Type,
		Enabled: model.Bool(t.IsEnabled()),
	}, identity[model.Task], t)
}

func (c *Coordinator) UpdateTask(ctx context.Context, t model.Task) {
	c.update(ctx, "tasks", t.ID, taskFields{
		Name:    t.Name,
		Unit:    t.Unit,
		Score:   t.Score,
		Type:    t.Type,
		Enabled: t.Enabled,
	})
}

func (c *Coordinator) DeleteTask(ctx context.Context, id int64) error {
	_, err := c.remove(ctx, "tasks", id)
	return err
}

func (c *Coordinator) AddGift(ctx context.Context, g model.Gift) model.Gift {
	return insert(ctx, c, "gifts", giftFields{
		Name:    g.Name,
		Image:   optionalString(g.Image),
		Score:   g.Score,
		Enabled: model.Bool(g.IsEnabled()),
	}, identity[model.Gift], g)
}

func (c *Coordinator) UpdateGift(ctx context.Context, g model.Gift) {
	c.update(ctx, "gifts", g.ID, giftUpdate{
		Name:    g.Name,
		Image:   g.Image,
		Score:   g.Score,
		Enabled: g.Enabled,
	})
}

func (c *Coordinator) DeleteGift(ctx context.Context, id int64) error {
	_, err := c.remove(ctx, "gifts", id)
	return err
}

func (c *Coordinator) AddRecord(ctx context.Context, r model.Record) model.Record {
	row := r.Row()
	row.ID = 0
	row.TaskID = optionalRef(r.TaskID)
	return insert(ctx, c, "records", row, model.RecordRow.Record, r)
}

func (c *Coordinator) DeleteRecord(ctx context.Context, id int64) error {
	rows, err := c.remove(ctx, "records", id)
	if err != nil {
		return err
	}
	if c.remote != nil && len(rows) == 0 {
		c.logger.Warn("delete returned no rows", "table", c.ns.Table("records"), "id", id)
	}
	return nil
}

func (c *Coordinator) AddRequest(ctx context.Context, r model.Request) model.Request {
	row := r.Row()
	row.ID = 0
	row.GiftID = optionalRef(r.GiftID)
	if row.Status == "" {
		row.Status = model.RequestPending
	}
	return insert(ctx, c, "requests", row, model.RequestRow.Request, r)
}

// UpdateRequest pushes only the status; the other fields are immutable.
func (c *Coordinator) UpdateRequest(ctx context.Context, r model.Request) {
	c.update(ctx, "requests", r.ID, statusPatch{Status: r.Status})
}

// UpdateSetting upserts key with value encoded as JSON.
func (c *Coordinator) UpdateSetting(ctx context.Context, key string, value any) {
	if c.remote == nil {
		return
	}

	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("encode setting", "key", key, "error", err)
		return
	}

	table := c.ns.Table("settings")
	err = c.remote.Upsert(ctx, table, model.Setting{Key: key, Value: raw, UpdatedAt: c.now()})
	if err != nil {
		c.logger.Error("push setting failed", "table", table, "key", key, "error", err)
		return
	}
	c.logger.Debug("pushed setting", "table", table, "key", key)
}
