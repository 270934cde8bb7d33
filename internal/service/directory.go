package service

import (
	"encoding/json"
	"log"
	"sort"

	"github.com/davork/chatlink/internal/backend"
	"github.com/davork/chatlink/internal/domain"
)

// DirectoryService derives the chat list visible to an identity from the
// full remote chat set.
type DirectoryService struct {
	store backend.Store
}

func NewDirectoryService(store backend.Store) *DirectoryService {
	return &DirectoryService{store: store}
}

// Watch subscribes to the chat directory for uid. Every snapshot of the set
// is reduced to the visible, ordered list and handed to fn; an empty or
// absent set yields an empty list. Cancel the returned subscription when the
// identity goes away or the list view is torn down.
func (s *DirectoryService) Watch(uid string, fn func([]domain.Chat)) (backend.Subscription, error) {
	return s.store.Subscribe("chats", func(snap json.RawMessage) {
		fn(VisibleChats(snap, uid))
	})
}

// VisibleChats filters a chats snapshot to those uid can see (public, or uid
// in the participant map) and orders them by last-message timestamp
// descending. Chats without messages carry timestamp 0 and sort last; ties
// break on chat id ascending so the order is deterministic.
func VisibleChats(snap json.RawMessage, uid string) []domain.Chat {
	out := []domain.Chat{}
	if isEmptySnapshot(snap) {
		return out
	}

	var set map[string]domain.Chat
	if err := json.Unmarshal(snap, &set); err != nil {
		log.Printf("directory: bad chats snapshot: %v", err)
		return out
	}

	for id, chat := range set {
		chat.ID = id
		if chat.VisibleTo(uid) {
			out = append(out, chat)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastActivity(), out[j].LastActivity()
		if a != b {
			return a > b
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func isEmptySnapshot(snap json.RawMessage) bool {
	return len(snap) == 0 || string(snap) == "null"
}
