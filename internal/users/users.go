// Package users maps logical user ids to the backend table prefix and local
// storage key prefix that isolate each user's collections.
package users

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
)

// CurrentUserKey is the persistent preference key holding the selected user.
const CurrentUserKey = "current_user"

// ErrUnknownUser is returned when an id is not in the registry.
var ErrUnknownUser = errors.New("unknown user")

var tablePrefixPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// User is one entry of the static user registry.
type User struct {
	ID            string `yaml:"id" json:"id"`
	Name          string `yaml:"name" json:"name"`
	TablePrefix   string `yaml:"table_prefix" json:"table_prefix"`
	StoragePrefix string `yaml:"storage_prefix" json:"storage_prefix"`
}

// Registry is the fixed set of known users. It is immutable after construction.
type Registry struct {
	users     map[string]User
	order     []string
	defaultID string
}

// DefaultUsers is the registry shipped when no config file lists users.
func DefaultUsers() []User {
	return []User{
		{ID: "youbao", Name: "Youbao", TablePrefix: "youbao_", StoragePrefix: "dingdang_"},
		{ID: "liguo", Name: "Liguo", TablePrefix: "liguo_", StoragePrefix: "liguo_"},
	}
}

// NewRegistry validates users and builds a registry. Ids, table prefixes and
// storage prefixes must each be unique so no two users can ever resolve to
// the same table or key.
func NewRegistry(users []User, defaultID string) (*Registry, error) {
	if len(users) == 0 {
		return nil, errors.New("registry needs at least one user")
	}

	r := &Registry{users: make(map[string]User, len(users))}
	tables := make(map[string]string, len(users))
	keys := make(map[string]string, len(users))

	for _, u := range users {
		if u.ID == "" {
			return nil, errors.New("user id is required")
		}
		if _, ok := r.users[u.ID]; ok {
			return nil, fmt.Errorf("duplicate user id %q", u.ID)
		}
		if !tablePrefixPattern.MatchString(u.TablePrefix) {
			return nil, fmt.Errorf("user %q: invalid table prefix %q", u.ID, u.TablePrefix)
		}
		if u.StoragePrefix == "" {
			return nil, fmt.Errorf("user %q: storage prefix is required", u.ID)
		}
		if other, ok := tables[u.TablePrefix]; ok {
			return nil, fmt.Errorf("users %q and %q share table prefix %q", other, u.ID, u.TablePrefix)
		}
		if other, ok := keys[u.StoragePrefix]; ok {
			return nil, fmt.Errorf("users %q and %q share storage prefix %q", other, u.ID, u.StoragePrefix)
		}
		tables[u.TablePrefix] = u.ID
		keys[u.StoragePrefix] = u.ID
		r.users[u.ID] = u
		r.order = append(r.order, u.ID)
	}

	if defaultID == "" {
		defaultID = r.order[0]
	}
	if _, ok := r.users[defaultID]; !ok {
		return nil, fmt.Errorf("default user %q: %w", defaultID, ErrUnknownUser)
	}
	r.defaultID = defaultID
	return r, nil
}

// Users returns all users in registry order.
func (r *Registry) Users() []User {
	out := make([]User, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.users[id])
	}
	return out
}

func (r *Registry) Lookup(id string) (User, bool) {
	u, ok := r.users[id]
	return u, ok
}

func (r *Registry) DefaultID() string {
	return r.defaultID
}

func (r *Registry) TablePrefix(id string) (string, error) {
	u, ok := r.users[id]
	if !ok {
		return "", fmt.Errorf("table prefix for %q: %w", id, ErrUnknownUser)
	}
	return u.TablePrefix, nil
}

func (r *Registry) StoragePrefix(id string) (string, error) {
	u, ok := r.users[id]
	if !ok {
		return "", fmt.Errorf("storage prefix for %q: %w", id, ErrUnknownUser)
	}
	return u.StoragePrefix, nil
}

// Preferences persists the selected user. mirror.Store satisfies it.
type Preferences interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// Resolver resolves namespaced table and key names for the current user.
type Resolver struct {
	registry *Registry
	prefs    Preferences
	logger   *slog.Logger
}

func NewResolver(registry *Registry, prefs Preferences, logger *slog.Logger) *Resolver {
	return &Resolver{registry: registry, prefs: prefs, logger: logger}
}

func (r *Resolver) Registry() *Registry {
	return r.registry
}

// Current returns the selected user id, or the registry default when none is
// stored, the stored id is no longer registered, or the preference store fails.
func (r *Resolver) Current() string {
	id, ok, err := r.prefs.Get(CurrentUserKey)
	if err != nil {
		r.logger.Warn("read current user", "error", err)
		return r.registry.defaultID
	}
	if !ok {
		return r.registry.defaultID
	}
	if _, known := r.registry.users[id]; !known {
		r.logger.Warn("stored user not in registry, using default", "user", id)
		return r.registry.defaultID
	}
	return id
}

// CurrentUser returns the registry entry for Current.
func (r *Resolver) CurrentUser() User {
	return r.registry.users[r.Current()]
}

// SetCurrent persists id as the selected user.
func (r *Resolver) SetCurrent(id string) error {
	u, ok := r.registry.users[id]
	if !ok {
		r.logger.Error("invalid user id", "user", id)
		return fmt.Errorf("set current user %q: %w", id, ErrUnknownUser)
	}
	if err := r.prefs.Set(CurrentUserKey, id); err != nil {
		return fmt.Errorf("persist current user: %w", err)
	}
	r.logger.Info("switched user", "user", id, "name", u.Name)
	return nil
}

// Table returns the backend table name of a logical collection.
func (r *Resolver) Table(name string) string {
	return r.CurrentUser().TablePrefix + name
}

// Key returns the local storage key of a logical collection.
func (r *Resolver) Key(name string) string {
	return r.CurrentUser().StoragePrefix + name
}
