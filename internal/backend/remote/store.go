package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/davork/chatlink/internal/backend"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	ackWait      = 15 * time.Second
)

// Store implements backend.Store over a gateway websocket session. Requests
// are correlated with acks by id; the gateway pushes a full snapshot for
// every subscribed path whenever its value changes.
type Store struct {
	conn *websocket.Conn

	mu        sync.Mutex
	pending   map[string]chan event
	listeners map[string][]*listener
	closed    bool

	group  *errgroup.Group
	cancel context.CancelFunc
}

type listener struct {
	path string
	fn   func(json.RawMessage)
}

// DialStore opens the gateway session, authenticating with the bearer token.
func DialStore(ctx context.Context, wsURL, token string) (*Store, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("dialing gateway: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	group, runCtx := errgroup.WithContext(runCtx)

	s := &Store{
		conn:      conn,
		pending:   make(map[string]chan event),
		listeners: make(map[string][]*listener),
		group:     group,
		cancel:    cancel,
	}
	group.Go(func() error { return s.readPump(runCtx) })
	group.Go(func() error { return s.pingLoop(runCtx) })
	return s, nil
}

// Close tears the session down and waits for the pumps to stop.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "")
	_ = s.group.Wait()
	return nil
}

func (s *Store) Read(ctx context.Context, path string) (json.RawMessage, error) {
	// One-shot read is a subscribe whose ack carries the current value. The
	// gateway holds a single stream per path, so the unsubscribe is only
	// sent when no local listener depends on that stream staying open.
	ack, err := s.request(ctx, event{Type: eventSubscribe, Path: path})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	streaming := len(s.listeners[path]) > 0
	s.mu.Unlock()

	if !streaming {
		if _, err := s.request(ctx, event{Type: eventUnsubscribe, Path: path}); err != nil {
			return nil, err
		}
	}
	return ack.Value, nil
}

func (s *Store) Write(ctx context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding store value: %w", err)
	}
	_, err = s.request(ctx, event{Type: eventWrite, Path: path, Value: raw})
	return err
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encoding store update: %w", err)
	}
	_, err = s.request(ctx, event{Type: eventUpdate, Path: path, Value: raw})
	return err
}

func (s *Store) Push(ctx context.Context, path string) (string, error) {
	ack, err := s.request(ctx, event{Type: eventPush, Path: path})
	if err != nil {
		return "", err
	}
	if ack.Key == "" {
		return "", fmt.Errorf("push on %s: gateway returned no key", path)
	}
	return ack.Key, nil
}

func (s *Store) Subscribe(path string, fn func(json.RawMessage)) (backend.Subscription, error) {
	l := &listener{path: path, fn: fn}

	s.mu.Lock()
	first := len(s.listeners[path]) == 0
	s.listeners[path] = append(s.listeners[path], l)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), ackWait)
	defer cancel()

	if first {
		ack, err := s.request(ctx, event{Type: eventSubscribe, Path: path})
		if err != nil {
			s.drop(l)
			return nil, err
		}
		s.dispatch(path, ack.Value)
	} else {
		// The gateway already streams this path; replay the current value.
		snap, err := s.Read(ctx, path)
		if err != nil {
			s.drop(l)
			return nil, err
		}
		fn(snap)
	}

	return &subscription{store: s, l: l}, nil
}

type subscription struct {
	store *Store
	l     *listener
	once  sync.Once
}

func (sub *subscription) Cancel() {
	sub.once.Do(func() {
		sub.store.drop(sub.l)
	})
}

// drop removes a listener and unsubscribes the path once nobody is left on it.
func (s *Store) drop(l *listener) {
	s.mu.Lock()
	remaining := s.listeners[l.path][:0]
	for _, cur := range s.listeners[l.path] {
		if cur != l {
			remaining = append(remaining, cur)
		}
	}
	if len(remaining) == 0 {
		delete(s.listeners, l.path)
	} else {
		s.listeners[l.path] = remaining
	}
	last := len(remaining) == 0
	closed := s.closed
	s.mu.Unlock()

	if last && !closed {
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		if _, err := s.request(ctx, event{Type: eventUnsubscribe, Path: l.path}); err != nil {
			log.Printf("remote store: unsubscribe %s: %v", l.path, err)
		}
	}
}

func (s *Store) request(ctx context.Context, ev event) (event, error) {
	ev.ID = uuid.New().String()
	ch := make(chan event, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return event{}, backend.ErrUnavailable
	}
	s.pending[ev.ID] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, ev.ID)
		s.mu.Unlock()
	}()

	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	err := wsjson.Write(writeCtx, s.conn, &ev)
	cancel()
	if err != nil {
		return event{}, fmt.Errorf("%w: %v", backend.ErrUnavailable, err)
	}

	select {
	case ack := <-ch:
		if ack.Error != "" {
			return event{}, fmt.Errorf("gateway %s on %s: %s", ev.Type, ev.Path, ack.Error)
		}
		return ack, nil
	case <-ctx.Done():
		return event{}, fmt.Errorf("%w: %v", backend.ErrUnavailable, ctx.Err())
	}
}

func (s *Store) readPump(ctx context.Context) error {
	for {
		var ev event
		if err := wsjson.Read(ctx, s.conn, &ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.CloseStatus(err) != -1 {
				log.Printf("remote store: gateway closed the session")
			} else {
				log.Printf("remote store: read error: %v", err)
			}
			return err
		}

		switch ev.Type {
		case eventAck:
			s.mu.Lock()
			ch := s.pending[ev.ID]
			s.mu.Unlock()
			if ch != nil {
				ch <- ev
			}
		case eventSnapshot:
			s.dispatch(ev.Path, ev.Value)
		default:
			log.Printf("remote store: unknown event type %q", ev.Type)
		}
	}
}

func (s *Store) pingLoop(ctx context.Context) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := s.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("pinging gateway: %w", err)
			}
		}
	}
}

func (s *Store) dispatch(path string, snap json.RawMessage) {
	s.mu.Lock()
	fire := make([]*listener, len(s.listeners[path]))
	copy(fire, s.listeners[path])
	s.mu.Unlock()

	for _, l := range fire {
		l.fn(snap)
	}
}
