package backend

import (
	"context"
	"encoding/json"

	"github.com/davork/chatlink/internal/domain"
)

// Subscription is a live listener registration against a remote source.
// Cancel releases the listener; no callbacks fire after Cancel returns.
type Subscription interface {
	Cancel()
}

// Auth is the managed authentication provider. Identity changes are pushed
// through OnIdentityChange rather than returned from SignIn/SignOut, so every
// consumer observes the same transitions regardless of who triggered them.
type Auth interface {
	CreateAccount(ctx context.Context, email, password string) (*domain.User, error)
	SignIn(ctx context.Context, email, password string) error
	SignOut(ctx context.Context) error
	UpdateDisplayName(ctx context.Context, uid, name string) error
	OnIdentityChange(fn func(*domain.User)) Subscription
}

// Store is the realtime hierarchical directory store. Paths are
// slash-separated ("chats/{id}", "messages/{chatID}/{msgID}"). Subscribe
// delivers the current value immediately and then a full replacement snapshot
// on every change under the path; callbacks receive nil when the path is
// absent. Snapshots are whole values, never deltas.
type Store interface {
	Read(ctx context.Context, path string) (json.RawMessage, error)
	Write(ctx context.Context, path string, value any) error
	Update(ctx context.Context, path string, fields map[string]any) error

	// Push allocates a new child key under path without writing anything.
	// Keys are monotonic per path, so key order is insertion order.
	Push(ctx context.Context, path string) (string, error)

	Subscribe(path string, fn func(json.RawMessage)) (Subscription, error)
}

// Blobs is the attachment storage service.
type Blobs interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	DownloadURL(ctx context.Context, path string) (string, error)
}

// ServerTimestamp is a sentinel value the store replaces with its own
// milliseconds-since-epoch clock at write time.
var ServerTimestamp any = serverTimestamp{}

type serverTimestamp struct{}

func (serverTimestamp) MarshalJSON() ([]byte, error) {
	return []byte(`{".sv":"timestamp"}`), nil
}
