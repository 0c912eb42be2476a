package handler

import (
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/dukerupert/tally/internal/model"
	"github.com/dukerupert/tally/internal/store"
)

// collection adapts one typed store to the generic table verbs. A nil
// function means the verb is not supported for that collection.
type collection struct {
	list   func(prefix string, orders []store.Order) (any, error)
	insert func(prefix string, body io.Reader) (row any, id int64, err error)
	update func(prefix string, id int64, body io.Reader) (found bool, err error)
	remove func(prefix string, id int64) (row any, found bool, err error)
	upsert func(prefix string, body io.Reader) (key string, created bool, err error)
}

func decode(body io.Reader, v any) error {
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return badRequest("invalid JSON")
	}
	return nil
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return badRequest(field + " is required")
	}
	return nil
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func taskCollection(ts *store.TaskStore) collection {
	return collection{
		list: func(prefix string, orders []store.Order) (any, error) {
			tasks, err := ts.List(prefix, orders)
			return orEmpty(tasks), err
		},
		insert: func(prefix string, body io.Reader) (any, int64, error) {
			var t model.Task
			if err := decode(body, &t); err != nil {
				return nil, 0, err
			}
			if err := required("name", t.Name); err != nil {
				return nil, 0, err
			}
			created, err := ts.Create(prefix, t)
			if err != nil {
				return nil, 0, err
			}
			return created, created.ID, nil
		},
		update: func(prefix string, id int64, body io.Reader) (bool, error) {
			var p store.TaskPatch
			if err := decode(body, &p); err != nil {
				return false, err
			}
			t, err := ts.Update(prefix, id, p)
			return t != nil, err
		},
		remove: func(prefix string, id int64) (any, bool, error) {
			t, err := ts.Delete(prefix, id)
			return t, t != nil, err
		},
	}
}

type giftInsert struct {
	Name    string  `json:"name"`
	Image   *string `json:"image"`
	Score   float64 `json:"score"`
	Enabled *bool   `json:"enabled"`
}

func giftCollection(gs *store.GiftStore) collection {
	return collection{
		list: func(prefix string, orders []store.Order) (any, error) {
			gifts, err := gs.List(prefix, orders)
			return orEmpty(gifts), err
		},
		insert: func(prefix string, body io.Reader) (any, int64, error) {
			var in giftInsert
			if err := decode(body, &in); err != nil {
				return nil, 0, err
			}
			if err := required("name", in.Name); err != nil {
				return nil, 0, err
			}
			g := model.Gift{Name: in.Name, Score: in.Score, Enabled: in.Enabled}
			if in.Image != nil {
				g.Image = *in.Image
			}
			created, err := gs.Create(prefix, g)
			if err != nil {
				return nil, 0, err
			}
			return created, created.ID, nil
		},
		update: func(prefix string, id int64, body io.Reader) (bool, error) {
			var p store.GiftPatch
			if err := decode(body, &p); err != nil {
				return false, err
			}
			g, err := gs.Update(prefix, id, p)
			return g != nil, err
		},
		remove: func(prefix string, id int64) (any, bool, error) {
			g, err := gs.Delete(prefix, id)
			return g, g != nil, err
		},
	}
}

func recordCollection(rs *store.RecordStore) collection {
	return collection{
		list: func(prefix string, orders []store.Order) (any, error) {
			records, err := rs.List(prefix, orders)
			return orEmpty(records), err
		},
		insert: func(prefix string, body io.Reader) (any, int64, error) {
			var r model.RecordRow
			if err := decode(body, &r); err != nil {
				return nil, 0, err
			}
			created, err := rs.Create(prefix, r)
			if err != nil {
				return nil, 0, err
			}
			return created, created.ID, nil
		},
		remove: func(prefix string, id int64) (any, bool, error) {
			r, err := rs.Delete(prefix, id)
			return r, r != nil, err
		},
	}
}

func requestCollection(rs *store.RequestStore) collection {
	return collection{
		list: func(prefix string, orders []store.Order) (any, error) {
			requests, err := rs.List(prefix, orders)
			return orEmpty(requests), err
		},
		insert: func(prefix string, body io.Reader) (any, int64, error) {
			var r model.RequestRow
			if err := decode(body, &r); err != nil {
				return nil, 0, err
			}
			created, err := rs.Create(prefix, r)
			if err != nil {
				return nil, 0, err
			}
			return created, created.ID, nil
		},
		update: func(prefix string, id int64, body io.Reader) (bool, error) {
			var p store.RequestPatch
			if err := decode(body, &p); err != nil {
				return false, err
			}
			r, err := rs.Update(prefix, id, p)
			return r != nil, err
		},
		remove: func(prefix string, id int64) (any, bool, error) {
			r, err := rs.Delete(prefix, id)
			return r, r != nil, err
		},
	}
}

func settingsCollection(ss *store.SettingsStore) collection {
	return collection{
		list: func(prefix string, orders []store.Order) (any, error) {
			settings, err := ss.List(prefix, orders)
			return orEmpty(settings), err
		},
		upsert: func(prefix string, body io.Reader) (string, bool, error) {
			var st model.Setting
			if err := decode(body, &st); err != nil {
				return "", false, err
			}
			if err := required("key", st.Key); err != nil {
				return "", false, err
			}
			if len(st.Value) == 0 {
				return "", false, badRequest("value is required")
			}
			existing, err := ss.Get(prefix, st.Key)
			if err != nil {
				return "", false, err
			}
			updatedAt := st.UpdatedAt
			if updatedAt.IsZero() {
				updatedAt = time.Now()
			}
			if err := ss.Set(prefix, st.Key, st.Value, updatedAt); err != nil {
				return "", false, err
			}
			return st.Key, existing == nil, nil
		},
	}
}
