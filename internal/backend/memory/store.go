package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/davork/chatlink/internal/backend"
)

// Store is an in-process implementation of backend.Store: a JSON tree with
// path listeners. It backs local mode and the test suites.
type Store struct {
	mu        sync.Mutex
	root      map[string]any
	listeners map[int]*listener
	nextID    int
	push      backend.PushIDGenerator
	now       func() int64 // ms clock, swappable in tests
}

type listener struct {
	path []string
	fn   func(json.RawMessage)
}

func NewStore() *Store {
	return &Store{
		root:      make(map[string]any),
		listeners: make(map[int]*listener),
		now:       func() int64 { return time.Now().UnixMilli() },
	}
}

func splitPath(path string) ([]string, error) {
	p := strings.Trim(strings.TrimSpace(path), "/")
	if p == "" {
		return nil, fmt.Errorf("empty store path")
	}
	segs := strings.Split(p, "/")
	for _, s := range segs {
		if s == "" {
			return nil, fmt.Errorf("invalid store path %q", path)
		}
	}
	return segs, nil
}

func (s *Store) Read(_ context.Context, path string) (json.RawMessage, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return marshalNode(s.getNode(segs))
}

func (s *Store) Write(_ context.Context, path string, value any) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	node, err := s.toNode(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.setNode(segs, node)
	fire := s.snapshotsFor(segs)
	s.mu.Unlock()

	deliver(fire)
	return nil
}

func (s *Store) Update(_ context.Context, path string, fields map[string]any) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	target, ok := s.getNode(segs).(map[string]any)
	if !ok {
		target = make(map[string]any)
		s.setNode(segs, target)
	}
	for k, v := range fields {
		node, err := s.toNode(v)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		if node == nil {
			delete(target, k)
		} else {
			target[k] = node
		}
	}
	fire := s.snapshotsFor(segs)
	s.mu.Unlock()

	deliver(fire)
	return nil
}

func (s *Store) Push(_ context.Context, path string) (string, error) {
	if _, err := splitPath(path); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.push.Next(s.now()), nil
}

func (s *Store) Subscribe(path string, fn func(json.RawMessage)) (backend.Subscription, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = &listener{path: segs, fn: fn}
	snap, err := marshalNode(s.getNode(segs))
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	// Initial snapshot, even when the path is absent.
	fn(snap)

	return &subscription{store: s, id: id}, nil
}

type subscription struct {
	store *Store
	id    int
	once  sync.Once
}

func (sub *subscription) Cancel() {
	sub.once.Do(func() {
		sub.store.mu.Lock()
		delete(sub.store.listeners, sub.id)
		sub.store.mu.Unlock()
	})
}

type firing struct {
	fn   func(json.RawMessage)
	snap json.RawMessage
}

// snapshotsFor collects callbacks affected by a mutation at segs: listeners
// on the path itself, on any ancestor, or on any descendant. Snapshots are
// taken under the lock; delivery happens outside it.
func (s *Store) snapshotsFor(segs []string) []firing {
	var out []firing
	for _, l := range s.listeners {
		if !related(l.path, segs) {
			continue
		}
		snap, err := marshalNode(s.getNode(l.path))
		if err != nil {
			continue
		}
		out = append(out, firing{fn: l.fn, snap: snap})
	}
	return out
}

func deliver(fire []firing) {
	for _, f := range fire {
		f.fn(f.snap)
	}
}

func related(a, b []string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s *Store) getNode(segs []string) any {
	var cur any = s.root
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return cur
}

func (s *Store) setNode(segs []string, node any) {
	cur := s.root
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
	last := segs[len(segs)-1]
	if node == nil {
		delete(cur, last)
	} else {
		cur[last] = node
	}
}

// toNode normalizes an arbitrary value into the store's JSON tree form and
// resolves server-timestamp sentinels against the store clock.
func (s *Store) toNode(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encoding store value: %w", err)
	}
	var node any
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("decoding store value: %w", err)
	}
	return s.resolveSentinels(node), nil
}

func (s *Store) resolveSentinels(node any) any {
	m, ok := node.(map[string]any)
	if !ok {
		return node
	}
	if len(m) == 1 {
		if sv, ok := m[".sv"].(string); ok && sv == "timestamp" {
			return s.now()
		}
	}
	for k, v := range m {
		m[k] = s.resolveSentinels(v)
	}
	return m
}

func marshalNode(node any) (json.RawMessage, error) {
	if node == nil {
		return nil, nil
	}
	raw, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return raw, nil
}
