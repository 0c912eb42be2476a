package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/tally/internal/remote"
)

// Settings changes are not watched; they only reach the mirror on the next
// full pull.
var realtimeCollections = []string{"records", "tasks", "gifts", "requests"}

// EnableRealtime subscribes to the current user's collections. Each change
// event feeds NotifyChange; onDataChange runs after every debounced pull that
// completes, with the collection of the last event.
func (c *Coordinator) EnableRealtime(ctx context.Context, onDataChange func(collection string)) error {
	if c.remote == nil {
		return nil
	}

	c.mu.Lock()
	c.realtimeCtx = ctx
	c.onDataChange = onDataChange
	c.mu.Unlock()

	if err := c.subscribeAll(ctx); err != nil {
		return err
	}
	c.logger.Info("live updates enabled", "user", c.ns.Current())
	return nil
}

// subscribeAll replaces any existing subscriptions with ones for the current
// namespace. On failure nothing stays subscribed.
func (c *Coordinator) subscribeAll(ctx context.Context) error {
	c.mu.Lock()
	old := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, s := range old {
		s.Close()
	}

	subs := make([]remote.Subscription, 0, len(realtimeCollections))
	for _, collection := range realtimeCollections {
		table := c.ns.Table(collection)
		sub, err := c.remote.Subscribe(ctx, table, func(e remote.ChangeEvent) {
			c.logger.Debug("change event", "table", e.Table, "type", e.Type, "id", e.ID)
			c.NotifyChange(collection)
		})
		if err != nil {
			for _, s := range subs {
				s.Close()
			}
			return fmt.Errorf("subscribe %s: %w", table, err)
		}
		subs = append(subs, sub)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		for _, s := range subs {
			s.Close()
		}
		return errors.New("coordinator closed")
	}
	c.subs = subs
	c.mu.Unlock()
	return nil
}

// NotifyChange records a remote change to collection and (re)arms the
// debounce timer. Only the last event of a burst triggers a pull.
func (c *Coordinator) NotifyChange(collection string) {
	if c.remote == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.timerGen++
	gen := c.timerGen
	c.pendingColl = collection
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.cfg.Debounce, func() { c.fireDebounce(gen) })
}

func (c *Coordinator) cancelDebounceLocked() {
	c.timerGen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Coordinator) fireDebounce(gen uint64) {
	c.mu.Lock()
	if gen != c.timerGen || c.closed {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	collection := c.pendingColl
	suppressed := c.suppressedLocked()
	onDataChange := c.onDataChange
	ctx := c.realtimeCtx
	c.mu.Unlock()

	if suppressed {
		c.logger.Debug("local operation in progress, dropping live pull", "collection", collection)
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := c.Pull(ctx); err != nil {
		c.logger.Error("live pull failed", "collection", collection, "error", err)
		return
	}
	if onDataChange != nil {
		onDataChange(collection)
	}
}

// The suppression window is a best-effort guard against re-pulling in
// reaction to our own deletes. A remote change landing inside it is missed
// until the next pull.

func (c *Coordinator) beginLocalOp() {
	c.mu.Lock()
	c.localOps++
	c.mu.Unlock()
}

// endLocalOp keeps suppression for SuppressWindow after a success and drops
// it at once after a failure.
func (c *Coordinator) endLocalOp(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.localOps--
	if !ok {
		c.suppressUntil = time.Time{}
		return
	}
	if until := c.now().Add(c.cfg.SuppressWindow); until.After(c.suppressUntil) {
		c.suppressUntil = until
	}
}

func (c *Coordinator) suppressedLocked() bool {
	return c.localOps > 0 || c.now().Before(c.suppressUntil)
}

// Suppressed reports whether live pulls are currently being dropped.
func (c *Coordinator) Suppressed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suppressedLocked()
}
