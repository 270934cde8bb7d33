package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/message"

	"github.com/davork/chatlink/internal/backend"
	"github.com/davork/chatlink/internal/domain"
	"github.com/davork/chatlink/pkg/validator"
)

var ErrNotSignedIn = errors.New("not signed in")

// ChatService creates chats and feeds the participant picker.
type ChatService struct {
	store    backend.Store
	session  Identity
	notifier Notifier
	p        *message.Printer
}

func NewChatService(store backend.Store, session Identity, notifier Notifier, p *message.Printer) *ChatService {
	return &ChatService{store: store, session: session, notifier: notifier, p: p}
}

type CreateChatInput struct {
	Name           string
	Type           domain.ChatType
	ParticipantIDs []string
}

// Create validates the request and writes the chat record as a single
// insert under a store-assigned id, which it returns for navigation. The
// participant map is the creator plus the selection; public chats get an
// empty map since membership plays no part in their visibility.
func (s *ChatService) Create(ctx context.Context, input CreateChatInput) (string, error) {
	user := s.session.Current()
	if user == nil {
		return "", ErrNotSignedIn
	}

	if errs := validator.ValidateNewChat(input.Name, input.Type, len(input.ParticipantIDs)); errs.HasErrors() {
		return "", errs
	}

	participants := map[string]bool{}
	if input.Type != domain.ChatPublic {
		participants[user.UID] = true
		for _, uid := range input.ParticipantIDs {
			participants[uid] = true
		}
	}

	id, err := s.store.Push(ctx, "chats")
	if err != nil {
		return "", s.fail("allocating chat id", err)
	}

	chat := domain.Chat{
		Type:         input.Type,
		Name:         strings.TrimSpace(input.Name),
		Participants: participants,
		CreatedBy:    user.UID,
		CreatedAt:    time.Now().UnixMilli(),
	}
	if err := s.store.Write(ctx, "chats/"+id, chat); err != nil {
		return "", s.fail("writing chat", err)
	}

	s.notifier.Success(s.p.Sprintf("Chat created"), s.p.Sprintf("Your chat has been created successfully."))
	return id, nil
}

// Participants reads the user directory once for the selection list,
// excluding the current identity. Display names fall back to the email local
// part.
func (s *ChatService) Participants(ctx context.Context) ([]domain.User, error) {
	user := s.session.Current()
	if user == nil {
		return nil, ErrNotSignedIn
	}

	snap, err := s.store.Read(ctx, "users")
	if err != nil {
		return nil, fmt.Errorf("reading users: %w", err)
	}

	out := []domain.User{}
	if isEmptySnapshot(snap) {
		return out, nil
	}

	var set map[string]domain.User
	if err := json.Unmarshal(snap, &set); err != nil {
		return nil, fmt.Errorf("decoding users: %w", err)
	}

	for uid, u := range set {
		if uid == user.UID {
			continue
		}
		u.UID = uid
		if u.DisplayName == "" {
			u.DisplayName = u.Name()
		}
		out = append(out, u)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

func (s *ChatService) fail(step string, err error) error {
	log.Printf("chats: %s: %v", step, err)
	s.notifier.Error(s.p.Sprintf("Failed to create chat"), s.p.Sprintf("An error occurred. Please try again."))
	return fmt.Errorf("%s: %w", step, err)
}
