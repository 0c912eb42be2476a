package cloudsync

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dukerupert/tally/internal/remote"
)

// fakeRemote is an in-memory remote.Client that records every call.
type fakeRemote struct {
	mu      sync.Mutex
	tables  map[string][]json.RawMessage
	nextID  int64
	calls   []string
	orders  map[string][]remote.Order
	inserts map[string][]json.RawMessage

	selectErr map[string]error
	insertErr error
	deleteErr error

	// selectGate, when set, blocks every Select until it is closed.
	selectGate chan struct{}
	// onDelete runs while a Delete is in flight.
	onDelete func()

	subs map[string]*fakeSub
}

type fakeSub struct {
	table    string
	onChange func(remote.ChangeEvent)
	closed   atomic.Bool
}

func (s *fakeSub) Close() error {
	s.closed.Store(true)
	return nil
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		tables:    make(map[string][]json.RawMessage),
		orders:    make(map[string][]remote.Order),
		inserts:   make(map[string][]json.RawMessage),
		selectErr: make(map[string]error),
		subs:      make(map[string]*fakeSub),
	}
}

func (f *fakeRemote) seed(table string, rows ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		f.tables[table] = append(f.tables[table], json.RawMessage(r))
	}
}

func (f *fakeRemote) callsWithPrefix(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// pulls counts completed or attempted pulls by their first select.
func (f *fakeRemote) pulls() int {
	n := 0
	for _, c := range f.callsWithPrefix("select ") {
		if strings.HasSuffix(c, "tasks") {
			n++
		}
	}
	return n
}

func (f *fakeRemote) Select(ctx context.Context, table string, orders ...remote.Order) ([]json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "select "+table)
	f.orders[table] = orders
	gate := f.selectGate
	err := f.selectErr[table]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]json.RawMessage{}, f.tables[table]...), nil
}

func (f *fakeRemote) Insert(ctx context.Context, table string, record any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "insert "+table)
	if f.insertErr != nil {
		return nil, f.insertErr
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	f.inserts[table] = append(f.inserts[table], data)

	var row map[string]any
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, err
	}
	f.nextID++
	row["id"] = f.nextID
	out, _ := json.Marshal(row)
	f.tables[table] = append(f.tables[table], out)
	return out, nil
}

func (f *fakeRemote) Update(ctx context.Context, table string, id int64, patch any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "update "+table)
	return nil
}

func (f *fakeRemote) Delete(ctx context.Context, table string, id int64) ([]json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "delete "+table)
	hook := f.onDelete
	err := f.deleteErr
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return []json.RawMessage{json.RawMessage(`{"id":1}`)}, nil
}

func (f *fakeRemote) Upsert(ctx context.Context, table string, record any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "upsert "+table)
	data, _ := json.Marshal(record)
	f.inserts[table] = append(f.inserts[table], data)
	return nil
}

func (f *fakeRemote) Subscribe(ctx context.Context, table string, onChange func(remote.ChangeEvent)) (remote.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "subscribe "+table)
	if strings.HasSuffix(table, "settings") {
		return nil, errors.New("settings are not watched")
	}
	s := &fakeSub{table: table, onChange: onChange}
	f.subs[table] = s
	return s, nil
}

func (f *fakeRemote) emit(table string) {
	f.mu.Lock()
	s := f.subs[table]
	f.mu.Unlock()
	if s != nil && !s.closed.Load() {
		s.onChange(remote.ChangeEvent{Table: table, Type: remote.EventInsert})
	}
}
