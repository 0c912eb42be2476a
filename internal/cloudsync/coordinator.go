// Package cloudsync keeps the local mirror in step with the remote backend.
//
// Pulls replace each collection of the current user wholesale; the remote is
// always the truth. Pushes send single rows and never touch the mirror. Live
// change notifications are debounced into one pull, and pulls triggered while
// a local delete is settling are dropped.
package cloudsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/tally/internal/mirror"
	"github.com/dukerupert/tally/internal/model"
	"github.com/dukerupert/tally/internal/remote"
	"github.com/dukerupert/tally/internal/users"
)

// SessionInitializedKey holds, in the session store, the id of the user whose
// data this session has already pulled.
const SessionInitializedKey = "sync_initialized"

// ErrDisabled is returned by operations that cannot be no-ops when no remote
// backend is configured.
var ErrDisabled = errors.New("cloud sync disabled")

// ErrMissingID is returned by deletes called with a zero id.
var ErrMissingID = errors.New("row id is required")

type State int

const (
	StateDisabled State = iota
	StateIdle
	StatePulling
	StateDebouncePending
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateIdle:
		return "idle"
	case StatePulling:
		return "pulling"
	case StateDebouncePending:
		return "debounce-pending"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Config struct {
	// Debounce is the quiet period after the last change event before a pull.
	Debounce time.Duration
	// SuppressWindow is how long after a successful local delete live pulls
	// are dropped.
	SuppressWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		Debounce:       500 * time.Millisecond,
		SuppressWindow: time.Second,
	}
}

// call is an in-flight Init pull for one user.
type call struct {
	user string
	done chan struct{}
	err  error
}

// Coordinator owns the sync state of one process. All methods are safe for
// concurrent use.
type Coordinator struct {
	remote  remote.Client
	ns      *users.Resolver
	local   mirror.Store
	session mirror.Store
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time

	pullMu sync.Mutex

	mu            sync.Mutex
	pulling       int
	initCall      *call
	timer         *time.Timer
	timerGen      uint64
	pendingColl   string
	localOps      int
	suppressUntil time.Time
	realtimeCtx   context.Context
	onDataChange  func(collection string)
	subs          []remote.Subscription
	closed        bool
}

// New creates a coordinator. A nil rc leaves it disabled for its lifetime.
func New(rc remote.Client, ns *users.Resolver, local, session mirror.Store, cfg Config, logger *slog.Logger) *Coordinator {
	if hc, ok := rc.(*remote.HTTPClient); ok && hc == nil {
		rc = nil
	}
	def := DefaultConfig()
	if cfg.Debounce <= 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.SuppressWindow <= 0 {
		cfg.SuppressWindow = def.SuppressWindow
	}
	if rc == nil {
		logger.Info("cloud sync disabled, running local-only")
	}
	return &Coordinator{
		remote:  rc,
		ns:      ns,
		local:   local,
		session: session,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

func (c *Coordinator) Enabled() bool {
	return c.remote != nil
}

func (c *Coordinator) State() State {
	if c.remote == nil {
		return StateDisabled
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.pulling > 0:
		return StatePulling
	case c.timer != nil:
		return StateDebouncePending
	default:
		return StateIdle
	}
}

func (c *Coordinator) sessionInitialized(user string) bool {
	v, ok, err := c.session.Get(SessionInitializedKey)
	if err != nil {
		c.logger.Warn("read session flag", "error", err)
		return false
	}
	return ok && v == user
}

// markInitialized records that user's data was pulled, unless another user
// became current while the pull ran.
func (c *Coordinator) markInitialized(user string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ns.Current() != user {
		return
	}
	if err := c.session.Set(SessionInitializedKey, user); err != nil {
		c.logger.Warn("set session flag", "error", err)
	}
}

func (c *Coordinator) resetSession() {
	if err := c.session.Remove(SessionInitializedKey); err != nil {
		c.logger.Warn("clear session flag", "error", err)
	}
}

// Init pulls once per session. Concurrent callers for the same user share
// the in-flight pull and its result; later callers return immediately. A
// caller arriving after a user switch waits out the previous user's pull and
// then pulls its own.
func (c *Coordinator) Init(ctx context.Context) error {
	if c.remote == nil {
		return nil
	}

	var (
		cl   *call
		user users.User
	)
	for {
		c.mu.Lock()
		user = c.ns.CurrentUser()
		if inflight := c.initCall; inflight != nil {
			c.mu.Unlock()
			select {
			case <-inflight.done:
			case <-ctx.Done():
				return ctx.Err()
			}
			if inflight.user == user.ID {
				return inflight.err
			}
			continue
		}
		if c.sessionInitialized(user.ID) {
			c.mu.Unlock()
			c.logger.Debug("already synced this session, using local data", "user", user.ID)
			return nil
		}
		cl = &call{user: user.ID, done: make(chan struct{})}
		c.initCall = cl
		c.mu.Unlock()
		break
	}

	cl.err = c.pull(ctx, user)
	if cl.err == nil {
		c.markInitialized(user.ID)
		c.logger.Info("initial sync complete", "user", user.ID)
	} else {
		c.logger.Error("initial sync failed, using local data", "user", user.ID, "error", cl.err)
	}

	c.mu.Lock()
	c.initCall = nil
	c.mu.Unlock()
	close(cl.done)
	return cl.err
}

// ManualSync forces a pull regardless of the session flag.
func (c *Coordinator) ManualSync(ctx context.Context) error {
	if c.remote == nil {
		return ErrDisabled
	}

	user := c.ns.CurrentUser()
	c.resetSession()
	if err := c.pull(ctx, user); err != nil {
		c.logger.Error("manual sync failed", "user", user.ID, "error", err)
		return err
	}
	c.markInitialized(user.ID)
	c.logger.Info("manual sync complete", "user", user.ID)
	return nil
}

// Pull refreshes every collection of the current user from the remote, in a
// fixed order. The user is resolved once, so a concurrent switch never mixes
// two users' tables and keys. The first failing collection aborts the pull;
// collections already written stay written. Pulls never run concurrently.
func (c *Coordinator) Pull(ctx context.Context) error {
	if c.remote == nil {
		return nil
	}
	return c.pull(ctx, c.ns.CurrentUser())
}

func (c *Coordinator) pull(ctx context.Context, user users.User) error {
	c.pullMu.Lock()
	defer c.pullMu.Unlock()

	c.mu.Lock()
	c.pulling++
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.pulling--
		c.mu.Unlock()
	}()

	c.logger.Debug("pulling", "user", user.ID)
	for _, step := range pullSteps {
		table := user.TablePrefix + step.collection
		rows, err := c.remote.Select(ctx, table, step.orders...)
		if err != nil {
			return fmt.Errorf("pull %s: %w", step.collection, err)
		}
		if err := step.save(c.local, user.StoragePrefix+step.collection, rows); err != nil {
			return fmt.Errorf("pull %s: %w", step.collection, err)
		}
		c.logger.Debug("pulled collection", "user", user.ID, "table", table, "rows", len(rows))
	}
	return nil
}

type pullStep struct {
	collection string
	orders     []remote.Order
	save       func(s mirror.Store, key string, rows []json.RawMessage) error
}

var pullSteps = []pullStep{
	{"tasks", []remote.Order{remote.Desc("type"), remote.Desc("score")}, saveRows(func(t model.Task) model.Task { return t })},
	{"gifts", []remote.Order{remote.Asc("id")}, saveRows(func(g model.Gift) model.Gift { return g })},
	{"records", []remote.Order{remote.Desc("date")}, saveRows(model.RecordRow.Record)},
	{"requests", []remote.Order{remote.Desc("date")}, saveRows(model.RequestRow.Request)},
	{"settings", nil, saveSettings},
}

// saveRows decodes backend rows of type R and stores them as local shape L.
func saveRows[R, L any](convert func(R) L) func(mirror.Store, string, []json.RawMessage) error {
	return func(s mirror.Store, key string, rows []json.RawMessage) error {
		items := make([]L, 0, len(rows))
		for _, raw := range rows {
			var row R
			if err := json.Unmarshal(raw, &row); err != nil {
				return fmt.Errorf("decode row: %w", err)
			}
			items = append(items, convert(row))
		}
		return mirror.SaveList(s, key, items)
	}
}

func saveSettings(s mirror.Store, key string, rows []json.RawMessage) error {
	settings := make(map[string]json.RawMessage, len(rows))
	for _, raw := range rows {
		var st model.Setting
		if err := json.Unmarshal(raw, &st); err != nil {
			return fmt.Errorf("decode setting: %w", err)
		}
		settings[st.Key] = st.Value
	}
	return mirror.SaveSettings(s, key, settings)
}

// SwitchUser selects another user, forgets that this session has synced,
// moves live subscriptions to the new namespace and pulls its data.
func (c *Coordinator) SwitchUser(ctx context.Context, id string) error {
	if err := c.ns.SetCurrent(id); err != nil {
		return err
	}
	c.resetSession()
	if c.remote == nil {
		return nil
	}

	c.mu.Lock()
	c.cancelDebounceLocked()
	realtimeCtx := c.realtimeCtx
	c.mu.Unlock()

	if realtimeCtx != nil {
		if err := c.subscribeAll(realtimeCtx); err != nil {
			c.logger.Error("resubscribe after user switch", "user", id, "error", err)
		}
	}
	return c.Init(ctx)
}

// Close stops the debounce timer and live subscriptions. The coordinator
// must not be used afterwards.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	c.closed = true
	c.cancelDebounceLocked()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	var errs []error
	for _, s := range subs {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
