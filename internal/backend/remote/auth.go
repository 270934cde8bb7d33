package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/davork/chatlink/internal/backend"
	"github.com/davork/chatlink/internal/domain"
)

// Auth implements backend.Auth against the gateway's HTTP endpoints. The
// gateway issues a JWT whose claims carry the identity; the client decodes
// the claims without verifying the signature, which only the gateway needs
// to check.
type Auth struct {
	base string
	http *http.Client

	mu       sync.Mutex
	token    string
	current  *domain.User
	watchers map[int]func(*domain.User)
	nextID   int
}

func NewAuth(baseURL string) *Auth {
	return &Auth{
		base:     baseURL,
		http:     &http.Client{Timeout: 15 * time.Second},
		watchers: make(map[int]func(*domain.User)),
	}
}

// Token returns the current bearer token, empty when signed out.
func (a *Auth) Token() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *Auth) CreateAccount(ctx context.Context, email, password string) (*domain.User, error) {
	tok, err := a.postCredentials(ctx, "/v1/accounts", email, password)
	if err != nil {
		return nil, err
	}
	return a.accept(tok)
}

func (a *Auth) SignIn(ctx context.Context, email, password string) error {
	tok, err := a.postCredentials(ctx, "/v1/sessions", email, password)
	if err != nil {
		return err
	}
	_, err = a.accept(tok)
	return err
}

func (a *Auth) SignOut(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, a.base+"/v1/sessions", nil)
	if err != nil {
		return err
	}
	a.authorize(req)
	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", backend.ErrUnavailable, err)
	}
	resp.Body.Close()

	a.mu.Lock()
	a.token = ""
	a.current = nil
	fire := a.watcherList()
	a.mu.Unlock()

	for _, fn := range fire {
		fn(nil)
	}
	return nil
}

func (a *Auth) UpdateDisplayName(ctx context.Context, uid, name string) error {
	body, _ := json.Marshal(map[string]string{"displayName": name})
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, a.base+"/v1/users/"+uid, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	a.authorize(req)

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", backend.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeAuthError(resp)
	}

	a.mu.Lock()
	var user *domain.User
	if a.current != nil && a.current.UID == uid {
		copied := *a.current
		copied.DisplayName = name
		a.current = &copied
		user = &copied
	}
	fire := a.watcherList()
	a.mu.Unlock()

	if user != nil {
		for _, fn := range fire {
			fn(user)
		}
	}
	return nil
}

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

func (a *Auth) postCredentials(ctx context.Context, path, email, password string) (string, error) {
	body, _ := json.Marshal(credentials{Email: email, Password: password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+path, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", backend.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", decodeAuthError(resp)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	return tok.Token, nil
}

// accept stores the token, decodes the identity claims, and notifies
// watchers.
func (a *Auth) accept(token string) (*domain.User, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("decoding identity token: %w", err)
	}

	user := &domain.User{}
	if sub, err := claims.GetSubject(); err == nil {
		user.UID = sub
	}
	if email, ok := claims["email"].(string); ok {
		user.Email = email
	}
	if name, ok := claims["name"].(string); ok {
		user.DisplayName = name
	}
	if user.UID == "" {
		return nil, fmt.Errorf("identity token has no subject")
	}

	a.mu.Lock()
	a.token = token
	a.current = user
	fire := a.watcherList()
	a.mu.Unlock()

	for _, fn := range fire {
		fn(user)
	}
	return user, nil
}

func (a *Auth) authorize(req *http.Request) {
	if tok := a.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
}

func (a *Auth) watcherList() []func(*domain.User) {
	out := make([]func(*domain.User), 0, len(a.watchers))
	for _, fn := range a.watchers {
		out = append(out, fn)
	}
	return out
}

// decodeAuthError maps the gateway's error body onto the auth taxonomy.
func decodeAuthError(resp *http.Response) error {
	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error.Code == "" {
		return fmt.Errorf("%w: gateway returned %s", backend.ErrUnavailable, resp.Status)
	}
	switch body.Error.Code {
	case "INVALID_CREDENTIALS":
		return &backend.AuthError{Code: backend.CodeInvalidCredentials}
	case "EMAIL_TAKEN":
		return &backend.AuthError{Code: backend.CodeEmailTaken}
	case "WEAK_PASSWORD":
		return &backend.AuthError{Code: backend.CodeWeakPassword}
	case "INVALID_EMAIL":
		return &backend.AuthError{Code: backend.CodeInvalidEmail}
	case "USER_DISABLED":
		return &backend.AuthError{Code: backend.CodeUserDisabled}
	case "RATE_LIMITED":
		return &backend.AuthError{Code: backend.CodeRateLimited}
	default:
		return fmt.Errorf("gateway error %s: %s", body.Error.Code, body.Error.Message)
	}
}
