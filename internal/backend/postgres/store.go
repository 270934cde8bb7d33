package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/davork/chatlink/internal/backend"
)

const notifyChannel = "chatlink_store"

// Store implements backend.Store on Postgres. Documents live in chat_nodes
// keyed by their slash path; reads assemble a subtree from the exact row and
// everything under it. Change fan-out rides LISTEN/NOTIFY: every write
// notifies with the changed path and a listener connection re-reads the
// affected subscription paths.
type Store struct {
	pool *pgxpool.Pool

	mu        sync.Mutex
	listeners map[int]*listener
	nextID    int
	push      backend.PushIDGenerator

	cancel context.CancelFunc
	done   chan struct{}
}

type listener struct {
	path string
	fn   func(json.RawMessage)
}

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chat_nodes (
			path  text PRIMARY KEY,
			value jsonb NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("ensuring chat_nodes schema: %w", err)
	}
	return nil
}

// NewStore starts the notification pump. Call Close to stop it.
func NewStore(ctx context.Context, pool *pgxpool.Pool) *Store {
	ctx, cancel := context.WithCancel(ctx)
	s := &Store{
		pool:      pool,
		listeners: make(map[int]*listener),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go s.pump(ctx)
	return s
}

func (s *Store) Close() {
	s.cancel()
	<-s.done
}

func (s *Store) Read(ctx context.Context, path string) (json.RawMessage, error) {
	path, err := cleanPath(path)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT path, value FROM chat_nodes WHERE path = $1 OR path LIKE $1 || '/%'`, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defer rows.Close()

	var node any
	found := false
	for rows.Next() {
		var rowPath string
		var raw json.RawMessage
		if err := rows.Scan(&rowPath, &raw); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", path, err)
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", rowPath, err)
		}
		node = graft(node, strings.TrimPrefix(strings.TrimPrefix(rowPath, path), "/"), value)
		found = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if !found {
		// The path may live inside an ancestor document.
		return s.readFromAncestor(ctx, path)
	}
	return json.Marshal(node)
}

func (s *Store) Write(ctx context.Context, path string, value any) error {
	path, err := cleanPath(path)
	if err != nil {
		return err
	}
	raw, err := encodeValue(value)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// A write replaces the whole subtree.
	if _, err := tx.Exec(ctx,
		`DELETE FROM chat_nodes WHERE path = $1 OR path LIKE $1 || '/%'`, path); err != nil {
		return fmt.Errorf("clearing %s: %w", path, err)
	}
	if raw != nil {
		if _, err := tx.Exec(ctx,
			`INSERT INTO chat_nodes (path, value) VALUES ($1, $2)`, path, raw); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, path); err != nil {
		return fmt.Errorf("notifying %s: %w", path, err)
	}
	return tx.Commit(ctx)
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	path, err := cleanPath(path)
	if err != nil {
		return err
	}
	raw, err := encodeValue(fields)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("updating %s: %w", path, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `
		INSERT INTO chat_nodes (path, value) VALUES ($1, $2)
		ON CONFLICT (path) DO UPDATE SET value = chat_nodes.value || EXCLUDED.value`,
		path, raw); err != nil {
		return fmt.Errorf("updating %s: %w", path, err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, path); err != nil {
		return fmt.Errorf("notifying %s: %w", path, err)
	}
	return tx.Commit(ctx)
}

func (s *Store) Push(_ context.Context, path string) (string, error) {
	if _, err := cleanPath(path); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.push.Next(time.Now().UnixMilli()), nil
}

func (s *Store) Subscribe(path string, fn func(json.RawMessage)) (backend.Subscription, error) {
	path, err := cleanPath(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = &listener{path: path, fn: fn}
	s.mu.Unlock()

	snap, err := s.Read(context.Background(), path)
	if err != nil {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
		return nil, err
	}
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

// pump holds one connection on LISTEN and refreshes affected listeners on
// every notification, reconnecting with backoff on failure.
func (s *Store) pump(ctx context.Context) {
	defer close(s.done)
	for {
		if err := s.listenOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("store: listen error: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (s *Store) listenOnce(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return fmt.Errorf("listening on %s: %w", notifyChannel, err)
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("waiting for notification: %w", err)
		}
		s.refresh(ctx, n.Payload)
	}
}

func (s *Store) refresh(ctx context.Context, changed string) {
	s.mu.Lock()
	affected := make([]*listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		if related(l.path, changed) {
			affected = append(affected, l)
		}
	}
	s.mu.Unlock()

	for _, l := range affected {
		snap, err := s.Read(ctx, l.path)
		if err != nil {
			log.Printf("store: refreshing %s: %v", l.path, err)
			continue
		}
		l.fn(snap)
	}
}

// readFromAncestor resolves a path that sits inside a stored document.
func (s *Store) readFromAncestor(ctx context.Context, path string) (json.RawMessage, error) {
	segs := strings.Split(path, "/")
	for i := len(segs) - 1; i > 0; i-- {
		ancestor := strings.Join(segs[:i], "/")
		var raw json.RawMessage
		err := s.pool.QueryRow(ctx,
			`SELECT value FROM chat_nodes WHERE path = $1`, ancestor).Scan(&raw)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", ancestor, err)
		}
		var node any
		if err := json.Unmarshal(raw, &node); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", ancestor, err)
		}
		for _, seg := range segs[i:] {
			m, ok := node.(map[string]any)
			if !ok {
				return nil, nil
			}
			node, ok = m[seg]
			if !ok {
				return nil, nil
			}
		}
		return json.Marshal(node)
	}
	return nil, nil
}

// graft places value into node at the slash-separated rel position; an empty
// rel replaces the node itself.
func graft(node any, rel string, value any) any {
	if rel == "" {
		return value
	}
	segs := strings.Split(rel, "/")
	root, ok := node.(map[string]any)
	if !ok {
		root = make(map[string]any)
	}
	cur := root
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = value
	return root
}

func related(a, b string) bool {
	return a == b || strings.HasPrefix(b, a+"/") || strings.HasPrefix(a, b+"/")
}

func cleanPath(path string) (string, error) {
	p := strings.Trim(strings.TrimSpace(path), "/")
	if p == "" {
		return "", fmt.Errorf("empty store path")
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" {
			return "", fmt.Errorf("invalid store path %q", path)
		}
	}
	return p, nil
}

// encodeValue normalizes a value for storage, resolving server-timestamp
// sentinels. nil stays nil, meaning deletion.
func encodeValue(value any) (json.RawMessage, error) {
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
	node = resolveSentinels(node)
	return json.Marshal(node)
}

func resolveSentinels(node any) any {
	m, ok := node.(map[string]any)
	if !ok {
		return node
	}
	if len(m) == 1 {
		if sv, ok := m[".sv"].(string); ok && sv == "timestamp" {
			return time.Now().UnixMilli()
		}
	}
	for k, v := range m {
		m[k] = resolveSentinels(v)
	}
	return m
}
