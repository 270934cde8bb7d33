package service

import (
	"encoding/json"
	"errors"
	"log"
	"sort"
	"sync"

	"github.com/davork/chatlink/internal/backend"
	"github.com/davork/chatlink/internal/domain"
)

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrAccessDenied = errors.New("you are not a participant of this chat")
)

// ConversationService opens live views over a single chat: its metadata and
// its ordered message history.
type ConversationService struct {
	store backend.Store
}

func NewConversationService(store backend.Store) *ConversationService {
	return &ConversationService{store: store}
}

// ConversationCallbacks receive view updates. Closed fires at most once,
// with ErrChatNotFound when the chat record is absent or ErrAccessDenied
// when the viewer loses access; the caller navigates away on either.
type ConversationCallbacks struct {
	Chat     func(*domain.Chat)
	Messages func([]domain.Message)
	Closed   func(error)
}

// ConversationView is a pair of live subscriptions on one chat. Metadata and
// message snapshots arrive independently; the loading flag clears on the
// first message snapshot, empty included.
type ConversationView struct {
	store  backend.Store
	chatID string
	uid    string
	cb     ConversationCallbacks

	mu       sync.Mutex
	loading  bool
	closed   bool
	closeErr error
	subs     []backend.Subscription
}

// Open starts both subscriptions. The access check runs on every metadata
// snapshot, so a viewer removed from a group mid-session is ejected on the
// next update.
func (s *ConversationService) Open(uid, chatID string, cb ConversationCallbacks) (*ConversationView, error) {
	v := &ConversationView{
		store:   s.store,
		chatID:  chatID,
		uid:     uid,
		cb:      cb,
		loading: true,
	}

	metaSub, err := s.store.Subscribe("chats/"+chatID, v.metaSnapshot)
	if err != nil {
		return nil, err
	}
	v.track(metaSub)

	msgSub, err := s.store.Subscribe("messages/"+chatID, v.messagesSnapshot)
	if err != nil {
		v.Close()
		return nil, err
	}
	v.track(msgSub)

	return v, nil
}

// Loading reports whether the first message snapshot is still pending.
func (v *ConversationView) Loading() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loading
}

// Err returns the close reason, nil while the view is live.
func (v *ConversationView) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closeErr
}

// Close cancels both subscriptions. Idempotent.
func (v *ConversationView) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	subs := v.subs
	v.subs = nil
	v.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}

// track records a subscription, or cancels it right away when the view was
// closed from within an initial snapshot callback.
func (v *ConversationView) track(sub backend.Subscription) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		sub.Cancel()
		return
	}
	v.subs = append(v.subs, sub)
	v.mu.Unlock()
}

func (v *ConversationView) metaSnapshot(snap json.RawMessage) {
	if isEmptySnapshot(snap) {
		v.fail(ErrChatNotFound)
		return
	}

	var chat domain.Chat
	if err := json.Unmarshal(snap, &chat); err != nil {
		log.Printf("conversation %s: bad chat snapshot: %v", v.chatID, err)
		return
	}
	chat.ID = v.chatID

	if !chat.VisibleTo(v.uid) {
		v.fail(ErrAccessDenied)
		return
	}

	v.mu.Lock()
	closed := v.closed
	v.mu.Unlock()
	if closed {
		return
	}

	if v.cb.Chat != nil {
		v.cb.Chat(&chat)
	}
}

func (v *ConversationView) messagesSnapshot(snap json.RawMessage) {
	v.mu.Lock()
	v.loading = false
	closed := v.closed
	v.mu.Unlock()
	if closed {
		return
	}

	msgs := orderMessages(snap)
	if v.cb.Messages != nil {
		v.cb.Messages(msgs)
	}
}

func (v *ConversationView) fail(reason error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.closeErr = reason
	subs := v.subs
	v.subs = nil
	v.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	if v.cb.Closed != nil {
		v.cb.Closed(reason)
	}
}

// orderMessages flattens a keyed message snapshot into a list sorted
// ascending by timestamp. Store keys are monotonic, so breaking ties on the
// key preserves insertion order.
func orderMessages(snap json.RawMessage) []domain.Message {
	out := []domain.Message{}
	if isEmptySnapshot(snap) {
		return out
	}

	var set map[string]domain.Message
	if err := json.Unmarshal(snap, &set); err != nil {
		log.Printf("conversation: bad messages snapshot: %v", err)
		return out
	}

	for id, msg := range set {
		msg.ID = id
		out = append(out, msg)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out
}
