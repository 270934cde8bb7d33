package service

import (
	"context"
	"errors"
	"testing"

	"github.com/davork/chatlink/internal/backend/memory"
	"github.com/davork/chatlink/internal/domain"
)

func seedMessage(t *testing.T, store *memory.Store, chatID, msgID string, msg domain.Message) {
	t.Helper()
	if err := store.Write(context.Background(), "messages/"+chatID+"/"+msgID, msg); err != nil {
		t.Fatalf("seed message %s: %v", msgID, err)
	}
}

func TestOpenDeliversMessagesAscending(t *testing.T) {
	store := memory.NewStore()
	seedChat(t, store, "c1", domain.Chat{Type: domain.ChatPublic, Name: "General"})
	seedMessage(t, store, "c1", "m2", domain.Message{Text: "second", SenderID: "bob", Timestamp: 200})
	seedMessage(t, store, "c1", "m1", domain.Message{Text: "first", SenderID: "alice", Timestamp: 100})

	var chat *domain.Chat
	var msgs []domain.Message
	view, err := NewConversationService(store).Open("alice", "c1", ConversationCallbacks{
		Chat:     func(c *domain.Chat) { chat = c },
		Messages: func(m []domain.Message) { msgs = m },
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer view.Close()

	if chat == nil || chat.Name != "General" {
		t.Fatalf("expected chat metadata, got %+v", chat)
	}
	if len(msgs) != 2 || msgs[0].Text != "first" || msgs[1].Text != "second" {
		t.Fatalf("expected ascending order, got %+v", msgs)
	}

	seedMessage(t, store, "c1", "m3", domain.Message{Text: "third", SenderID: "alice", Timestamp: 300})
	if len(msgs) != 3 || msgs[2].Text != "third" {
		t.Fatalf("expected live append, got %+v", msgs)
	}
}

func TestOpenTieBreaksEqualTimestampsByKey(t *testing.T) {
	store := memory.NewStore()
	seedChat(t, store, "c1", domain.Chat{Type: domain.ChatPublic, Name: "General"})
	seedMessage(t, store, "c1", "kb", domain.Message{Text: "later key", Timestamp: 100})
	seedMessage(t, store, "c1", "ka", domain.Message{Text: "earlier key", Timestamp: 100})

	var msgs []domain.Message
	view, err := NewConversationService(store).Open("alice", "c1", ConversationCallbacks{
		Messages: func(m []domain.Message) { msgs = m },
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer view.Close()

	if msgs[0].ID != "ka" || msgs[1].ID != "kb" {
		t.Fatalf("expected key order on equal timestamps, got %+v", msgs)
	}
}

func TestOpenLoadingClearsOnEmptyHistory(t *testing.T) {
	store := memory.NewStore()
	seedChat(t, store, "c1", domain.Chat{Type: domain.ChatPublic, Name: "General"})

	var msgs []domain.Message
	delivered := false
	view, err := NewConversationService(store).Open("alice", "c1", ConversationCallbacks{
		Messages: func(m []domain.Message) { delivered, msgs = true, m },
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer view.Close()

	if view.Loading() {
		t.Fatal("loading must clear on the first snapshot even when empty")
	}
	if !delivered || msgs == nil || len(msgs) != 0 {
		t.Fatalf("expected an empty message list, got delivered=%v msgs=%v", delivered, msgs)
	}
}

func TestOpenMissingChatCloses(t *testing.T) {
	store := memory.NewStore()

	var reason error
	view, err := NewConversationService(store).Open("alice", "ghost", ConversationCallbacks{
		Closed: func(err error) { reason = err },
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if !errors.Is(reason, ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound, got %v", reason)
	}
	if !errors.Is(view.Err(), ErrChatNotFound) {
		t.Fatalf("expected view error to stick, got %v", view.Err())
	}
}

func TestOpenDeniedForNonParticipant(t *testing.T) {
	store := memory.NewStore()
	seedChat(t, store, "c1", domain.Chat{
		Type:         domain.ChatGroup,
		Name:         "eng",
		Participants: map[string]bool{"bob": true},
	})

	var reason error
	_, err := NewConversationService(store).Open("alice", "c1", ConversationCallbacks{
		Closed: func(err error) { reason = err },
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if !errors.Is(reason, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", reason)
	}
}

func TestOpenEjectsViewerWhenAccessRevoked(t *testing.T) {
	store := memory.NewStore()
	seedChat(t, store, "c1", domain.Chat{
		Type:         domain.ChatGroup,
		Name:         "eng",
		Participants: map[string]bool{"alice": true, "bob": true},
	})

	closes := 0
	var reason error
	view, err := NewConversationService(store).Open("alice", "c1", ConversationCallbacks{
		Closed: func(err error) { closes, reason = closes+1, err },
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if view.Err() != nil {
		t.Fatalf("view must start live, got %v", view.Err())
	}

	seedChat(t, store, "c1", domain.Chat{
		Type:         domain.ChatGroup,
		Name:         "eng",
		Participants: map[string]bool{"bob": true},
	})

	if closes != 1 || !errors.Is(reason, ErrAccessDenied) {
		t.Fatalf("expected a single ErrAccessDenied close, got closes=%d reason=%v", closes, reason)
	}

	// Further writes must not resurrect the view.
	seedMessage(t, store, "c1", "m1", domain.Message{Text: "hi", Timestamp: 100})
	if closes != 1 {
		t.Fatalf("Closed fired again: %d", closes)
	}
}

func TestCloseStopsBothSubscriptions(t *testing.T) {
	store := memory.NewStore()
	seedChat(t, store, "c1", domain.Chat{Type: domain.ChatPublic, Name: "General"})

	metaCalls, msgCalls := 0, 0
	view, err := NewConversationService(store).Open("alice", "c1", ConversationCallbacks{
		Chat:     func(*domain.Chat) { metaCalls++ },
		Messages: func([]domain.Message) { msgCalls++ },
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	view.Close()
	view.Close() // idempotent

	seedChat(t, store, "c1", domain.Chat{Type: domain.ChatPublic, Name: "Renamed"})
	seedMessage(t, store, "c1", "m1", domain.Message{Text: "hi", Timestamp: 100})

	if metaCalls != 1 || msgCalls != 1 {
		t.Fatalf("expected only initial snapshots, got meta=%d msgs=%d", metaCalls, msgCalls)
	}
	if view.Err() != nil {
		t.Fatalf("plain Close must not record a reason, got %v", view.Err())
	}
}
