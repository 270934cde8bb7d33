package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/message"

	"github.com/davork/chatlink/internal/backend"
	"github.com/davork/chatlink/internal/domain"
	"github.com/davork/chatlink/pkg/validator"
)

// SessionService tracks the authenticated identity and gates everything
// else. It mirrors auth identity changes to its own watchers, so dependents
// never talk to the auth provider directly.
type SessionService struct {
	auth     backend.Auth
	store    backend.Store
	notifier Notifier
	p        *message.Printer

	mu       sync.Mutex
	current  *domain.User
	watchers map[int]func(*domain.User)
	nextID   int
	authSub  backend.Subscription
}

func NewSessionService(auth backend.Auth, store backend.Store, notifier Notifier, p *message.Printer) *SessionService {
	s := &SessionService{
		auth:     auth,
		store:    store,
		notifier: notifier,
		p:        p,
		watchers: make(map[int]func(*domain.User)),
	}
	s.authSub = auth.OnIdentityChange(s.identityChanged)
	return s
}

// Current returns the signed-in user, nil when signed out.
func (s *SessionService) Current() *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Watch registers fn for identity transitions and invokes it immediately
// with the current identity.
func (s *SessionService) Watch(fn func(*domain.User)) backend.Subscription {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	cur := s.current
	s.mu.Unlock()

	fn(cur)
	return &sessionWatch{s: s, id: id}
}

// Close releases the auth listener. The session is unusable afterwards.
func (s *SessionService) Close() {
	if s.authSub != nil {
		s.authSub.Cancel()
	}
}

// Login signs in. Validation failures are returned for inline display and
// never reach the network; auth failures are classified into a localized
// notification.
func (s *SessionService) Login(ctx context.Context, email, password string) error {
	if errs := validator.ValidateLogin(email, password); errs.HasErrors() {
		return errs
	}

	if err := s.auth.SignIn(ctx, email, password); err != nil {
		s.notifier.Error(s.p.Sprintf("Sign-in failed"), s.loginMessage(err))
		return err
	}

	s.notifier.Success(s.p.Sprintf("Welcome back!"), s.p.Sprintf("You have signed in successfully."))
	return nil
}

// Register creates the auth account, sets the display name, and mirrors the
// identity record into the directory store at users/{uid}.
func (s *SessionService) Register(ctx context.Context, email, password, name string) error {
	if errs := validator.ValidateRegister(email, name, password); errs.HasErrors() {
		return errs
	}

	user, err := s.auth.CreateAccount(ctx, email, password)
	if err != nil {
		s.notifier.Error(s.p.Sprintf("Registration failed"), s.registerMessage(err))
		return err
	}

	name = strings.TrimSpace(name)
	if err := s.auth.UpdateDisplayName(ctx, user.UID, name); err != nil {
		s.notifier.Error(s.p.Sprintf("Registration failed"), s.registerMessage(err))
		return fmt.Errorf("setting display name: %w", err)
	}

	record := domain.User{
		UID:         user.UID,
		Email:       user.Email,
		DisplayName: name,
		CreatedAt:   time.Now().UnixMilli(),
	}
	if err := s.store.Write(ctx, "users/"+user.UID, record); err != nil {
		s.notifier.Error(s.p.Sprintf("Registration failed"), s.registerMessage(err))
		return fmt.Errorf("mirroring user record: %w", err)
	}

	s.notifier.Success(s.p.Sprintf("Account created!"), s.p.Sprintf("You have registered successfully."))
	return nil
}

// Logout signs out. Failures are rare (backend unavailability) and surfaced
// once, not retried.
func (s *SessionService) Logout(ctx context.Context) error {
	if err := s.auth.SignOut(ctx); err != nil {
		log.Printf("session: sign-out error: %v", err)
		s.notifier.Error(s.p.Sprintf("Sign-out failed"), s.p.Sprintf("Sign-out failed. Try again."))
		return err
	}

	s.notifier.Success(s.p.Sprintf("Signed out"), s.p.Sprintf("You have signed out of your account."))
	return nil
}

func (s *SessionService) loginMessage(err error) string {
	switch backend.AuthCode(err) {
	case backend.CodeInvalidCredentials:
		return s.p.Sprintf("Incorrect email or password.")
	case backend.CodeRateLimited:
		return s.p.Sprintf("Too many sign-in attempts. Try again later.")
	case backend.CodeUserDisabled:
		return s.p.Sprintf("This account has been disabled.")
	default:
		return s.p.Sprintf("Sign-in failed. Try again.")
	}
}

func (s *SessionService) registerMessage(err error) string {
	switch backend.AuthCode(err) {
	case backend.CodeEmailTaken:
		return s.p.Sprintf("This email is already in use by another account.")
	case backend.CodeWeakPassword:
		return s.p.Sprintf("Password must be at least 6 characters.")
	case backend.CodeInvalidEmail:
		return s.p.Sprintf("Invalid email.")
	default:
		return s.p.Sprintf("Registration failed. Try again.")
	}
}

func (s *SessionService) identityChanged(user *domain.User) {
	s.mu.Lock()
	s.current = user
	fire := make([]func(*domain.User), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fire = append(fire, fn)
	}
	s.mu.Unlock()

	for _, fn := range fire {
		fn(user)
	}
}

type sessionWatch struct {
	s    *SessionService
	id   int
	once sync.Once
}

func (w *sessionWatch) Cancel() {
	w.once.Do(func() {
		w.s.mu.Lock()
		delete(w.s.watchers, w.id)
		w.s.mu.Unlock()
	})
}
