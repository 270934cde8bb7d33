package service

import (
	"context"
	"errors"
	"testing"

	"github.com/davork/chatlink/internal/domain"
	"github.com/davork/chatlink/pkg/validator"
)

func newTestChatService(store *countingStore, user *domain.User) (*ChatService, *recordingNotifier) {
	notifier := &recordingNotifier{}
	return NewChatService(store, &fixedIdentity{user: user}, notifier, enPrinter()), notifier
}

func TestCreateRejectsBadPrivateSelection(t *testing.T) {
	store := newCountingStore()
	svc, notifier := newTestChatService(store, alice())

	for _, ids := range [][]string{nil, {"bob", "carol"}} {
		_, err := svc.Create(context.Background(), CreateChatInput{
			Name:           "pair",
			Type:           domain.ChatPrivate,
			ParticipantIDs: ids,
		})
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			t.Fatalf("expected validation errors for %v, got %v", ids, err)
		}
	}
	if store.pushes != 0 || store.writes != 0 {
		t.Fatal("rejected requests must not touch the store")
	}
	if len(notifier.toasts) != 0 {
		t.Fatalf("validation failures render inline, got %v", notifier.toasts)
	}
}

func TestCreateRejectsEmptyGroupSelection(t *testing.T) {
	store := newCountingStore()
	svc, _ := newTestChatService(store, alice())

	_, err := svc.Create(context.Background(), CreateChatInput{Name: "eng", Type: domain.ChatGroup})
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected validation errors, got %v", err)
	}
}

func TestCreateGroupIncludesCreator(t *testing.T) {
	store := newCountingStore()
	svc, notifier := newTestChatService(store, alice())

	id, err := svc.Create(context.Background(), CreateChatInput{
		Name:           "  eng  ",
		Type:           domain.ChatGroup,
		ParticipantIDs: []string{"bob", "carol"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var chat domain.Chat
	if err := readJSON(context.Background(), store, "chats/"+id, &chat); err != nil {
		t.Fatalf("read chat: %v", err)
	}
	if chat.Name != "eng" {
		t.Fatalf("expected trimmed name, got %q", chat.Name)
	}
	want := map[string]bool{"alice": true, "bob": true, "carol": true}
	if len(chat.Participants) != len(want) {
		t.Fatalf("participants mismatch: %v", chat.Participants)
	}
	for uid := range want {
		if !chat.Participants[uid] {
			t.Fatalf("missing participant %s: %v", uid, chat.Participants)
		}
	}
	if chat.CreatedBy != "alice" {
		t.Fatalf("creator mismatch: %q", chat.CreatedBy)
	}
	if got := notifier.last(); got.kind != "success" || got.title != "Chat created" {
		t.Fatalf("expected the success toast, got %+v", got)
	}
}

func TestCreatePublicIgnoresSelection(t *testing.T) {
	store := newCountingStore()
	svc, _ := newTestChatService(store, alice())

	id, err := svc.Create(context.Background(), CreateChatInput{
		Name:           "General",
		Type:           domain.ChatPublic,
		ParticipantIDs: []string{"bob"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var chat domain.Chat
	if err := readJSON(context.Background(), store, "chats/"+id, &chat); err != nil {
		t.Fatalf("read chat: %v", err)
	}
	if len(chat.Participants) != 0 {
		t.Fatalf("public chats carry no participant map, got %v", chat.Participants)
	}

	// Visible to the creator and to a stranger alike.
	snap, err := store.Read(context.Background(), "chats")
	if err != nil {
		t.Fatalf("read chats: %v", err)
	}
	for _, uid := range []string{"alice", "stranger"} {
		visible := VisibleChats(snap, uid)
		if len(visible) != 1 || visible[0].ID != id {
			t.Fatalf("public chat not visible to %s: %v", uid, visible)
		}
	}
}

func TestCreateRequiresIdentity(t *testing.T) {
	svc, _ := newTestChatService(newCountingStore(), nil)

	_, err := svc.Create(context.Background(), CreateChatInput{Name: "x", Type: domain.ChatPublic})
	if !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("expected ErrNotSignedIn, got %v", err)
	}
}

func TestCreateFailureShowsToast(t *testing.T) {
	store := newCountingStore()
	store.failWrite = true
	svc, notifier := newTestChatService(store, alice())

	_, err := svc.Create(context.Background(), CreateChatInput{Name: "General", Type: domain.ChatPublic})
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("expected the store error, got %v", err)
	}
	if got := notifier.last(); got.kind != "error" || got.title != "Failed to create chat" {
		t.Fatalf("expected the failure toast, got %+v", got)
	}
}

func TestParticipantsExcludesSelfAndFallsBack(t *testing.T) {
	store := newCountingStore()
	ctx := context.Background()
	users := map[string]domain.User{
		"alice": {Email: "alice@example.com", DisplayName: "Alice"},
		"bob":   {Email: "bob@example.com", DisplayName: "Bob"},
		"carol": {Email: "carol@example.com"},
	}
	for uid, u := range users {
		if err := store.Store.Write(ctx, "users/"+uid, u); err != nil {
			t.Fatalf("seed user %s: %v", uid, err)
		}
	}

	svc, _ := newTestChatService(store, alice())
	got, err := svc.Participants(ctx)
	if err != nil {
		t.Fatalf("Participants: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %+v", got)
	}
	if got[0].UID != "bob" || got[1].UID != "carol" {
		t.Fatalf("expected name order bob, carol; got %+v", got)
	}
	if got[1].DisplayName != "carol" {
		t.Fatalf("expected email local-part fallback, got %q", got[1].DisplayName)
	}
}

func TestParticipantsEmptyDirectory(t *testing.T) {
	svc, _ := newTestChatService(newCountingStore(), alice())

	got, err := svc.Participants(context.Background())
	if err != nil {
		t.Fatalf("Participants: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected an empty list, got %v", got)
	}
}
