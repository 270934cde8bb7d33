package memory

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"

	"github.com/davork/chatlink/internal/backend"
	"github.com/davork/chatlink/internal/domain"
)

// maxFailedSignIns is the consecutive-failure threshold after which further
// attempts for that email are rejected as rate-limited.
const maxFailedSignIns = 5

// Auth is an in-process implementation of backend.Auth with argon2id
// password hashing. It keeps the provider's classification behavior:
// duplicate emails, weak passwords, disabled accounts and rate limiting all
// surface as coded AuthErrors.
type Auth struct {
	mu       sync.Mutex
	accounts map[string]*account // keyed by lowercased email
	current  *domain.User
	watchers map[int]func(*domain.User)
	nextID   int
	failed   map[string]int
}

type account struct {
	uid          string
	email        string
	passwordHash string
	displayName  string
	disabled     bool
	createdAt    int64
}

func NewAuth() *Auth {
	return &Auth{
		accounts: make(map[string]*account),
		watchers: make(map[int]func(*domain.User)),
		failed:   make(map[string]int),
	}
}

func (a *Auth) CreateAccount(_ context.Context, email, password string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, &backend.AuthError{Code: backend.CodeInvalidEmail, Err: err}
	}
	if len(password) < 6 {
		return nil, &backend.AuthError{Code: backend.CodeWeakPassword}
	}

	a.mu.Lock()
	if _, ok := a.accounts[email]; ok {
		a.mu.Unlock()
		return nil, &backend.AuthError{Code: backend.CodeEmailTaken}
	}
	hash, err := hashPassword(password)
	if err != nil {
		a.mu.Unlock()
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	acc := &account{
		uid:          uuid.New().String(),
		email:        email,
		passwordHash: hash,
		createdAt:    time.Now().UnixMilli(),
	}
	a.accounts[email] = acc
	user := acc.user()
	a.current = user
	fire := a.watcherList()
	a.mu.Unlock()

	notify(fire, user)
	return user, nil
}

func (a *Auth) SignIn(_ context.Context, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	a.mu.Lock()
	if a.failed[email] >= maxFailedSignIns {
		a.mu.Unlock()
		return &backend.AuthError{Code: backend.CodeRateLimited}
	}
	acc, ok := a.accounts[email]
	if !ok || !verifyPassword(password, acc.passwordHash) {
		a.failed[email]++
		a.mu.Unlock()
		return &backend.AuthError{Code: backend.CodeInvalidCredentials}
	}
	if acc.disabled {
		a.mu.Unlock()
		return &backend.AuthError{Code: backend.CodeUserDisabled}
	}
	delete(a.failed, email)
	user := acc.user()
	a.current = user
	fire := a.watcherList()
	a.mu.Unlock()

	notify(fire, user)
	return nil
}

func (a *Auth) SignOut(_ context.Context) error {
	a.mu.Lock()
	a.current = nil
	fire := a.watcherList()
	a.mu.Unlock()

	notify(fire, nil)
	return nil
}

func (a *Auth) UpdateDisplayName(_ context.Context, uid, name string) error {
	a.mu.Lock()
	var user *domain.User
	for _, acc := range a.accounts {
		if acc.uid == uid {
			acc.displayName = name
			if a.current != nil && a.current.UID == uid {
				user = acc.user()
				a.current = user
			}
			break
		}
	}
	var fire []func(*domain.User)
	if user != nil {
		fire = a.watcherList()
	}
	a.mu.Unlock()

	if user != nil {
		notify(fire, user)
	}
	return nil
}

// OnIdentityChange registers fn and invokes it immediately with the current
// identity, nil included.
func (a *Auth) OnIdentityChange(fn func(*domain.User)) backend.Subscription {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.watchers[id] = fn
	cur := a.current
	a.mu.Unlock()

	fn(cur)
	return &watcherSub{auth: a, id: id}
}

// Disable marks the account so the next sign-in fails as user-disabled.
func (a *Auth) Disable(uid string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, acc := range a.accounts {
		if acc.uid == uid {
			acc.disabled = true
			return
		}
	}
}

type watcherSub struct {
	auth *Auth
	id   int
	once sync.Once
}

func (w *watcherSub) Cancel() {
	w.once.Do(func() {
		w.auth.mu.Lock()
		delete(w.auth.watchers, w.id)
		w.auth.mu.Unlock()
	})
}

func (acc *account) user() *domain.User {
	return &domain.User{
		UID:         acc.uid,
		Email:       acc.email,
		DisplayName: acc.displayName,
		CreatedAt:   acc.createdAt,
	}
}

func (a *Auth) watcherList() []func(*domain.User) {
	out := make([]func(*domain.User), 0, len(a.watchers))
	for _, fn := range a.watchers {
		out = append(out, fn)
	}
	return out
}

func notify(fire []func(*domain.User), user *domain.User) {
	for _, fn := range fire {
		fn(user)
	}
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)

	return fmt.Sprintf("%s:%s",
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

func verifyPassword(password, encoded string) bool {
	saltB64, hashB64, ok := strings.Cut(encoded, ":")
	if !ok {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(saltB64)
	if err != nil {
		return false
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(hashB64)
	if err != nil {
		return false
	}

	hash := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)
	return subtle.ConstantTimeCompare(hash, expectedHash) == 1
}
