package service

import (
	"context"
	"encoding/json"
	"errors"

	"golang.org/x/text/message"

	"github.com/davork/chatlink/internal/backend"
	"github.com/davork/chatlink/internal/backend/memory"
	"github.com/davork/chatlink/internal/domain"
	"github.com/davork/chatlink/internal/i18n"
)

func enPrinter() *message.Printer { return i18n.Printer("en-US") }

type toast struct {
	kind  string // "success" | "error"
	title string
	body  string
}

// recordingNotifier captures the user-facing side channel for assertions.
type recordingNotifier struct {
	toasts []toast
}

func (n *recordingNotifier) Success(title, body string) {
	n.toasts = append(n.toasts, toast{kind: "success", title: title, body: body})
}

func (n *recordingNotifier) Error(title, body string) {
	n.toasts = append(n.toasts, toast{kind: "error", title: title, body: body})
}

func (n *recordingNotifier) last() toast {
	if len(n.toasts) == 0 {
		return toast{}
	}
	return n.toasts[len(n.toasts)-1]
}

type fixedIdentity struct {
	user *domain.User
}

func (f *fixedIdentity) Current() *domain.User { return f.user }

var errStoreDown = errors.New("store down")

// countingStore wraps a memory store, counting mutations and optionally
// failing selected operations.
type countingStore struct {
	*memory.Store
	pushes     int
	writes     int
	updates    int
	failPush   bool
	failWrite  bool
	failUpdate bool
}

func newCountingStore() *countingStore {
	return &countingStore{Store: memory.NewStore()}
}

func (s *countingStore) Push(ctx context.Context, path string) (string, error) {
	if s.failPush {
		return "", errStoreDown
	}
	s.pushes++
	return s.Store.Push(ctx, path)
}

func (s *countingStore) Write(ctx context.Context, path string, value any) error {
	if s.failWrite {
		return errStoreDown
	}
	s.writes++
	return s.Store.Write(ctx, path, value)
}

func (s *countingStore) Update(ctx context.Context, path string, fields map[string]any) error {
	if s.failUpdate {
		return errStoreDown
	}
	s.updates++
	return s.Store.Update(ctx, path, fields)
}

// countingBlobs wraps memory blobs, counting uploads.
type countingBlobs struct {
	*memory.Blobs
	uploads int
}

func newCountingBlobs() *countingBlobs {
	return &countingBlobs{Blobs: memory.NewBlobs()}
}

func (b *countingBlobs) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	b.uploads++
	return b.Blobs.Upload(ctx, path, data, contentType)
}

func readJSON(ctx context.Context, store backend.Store, path string, out any) error {
	snap, err := store.Read(ctx, path)
	if err != nil {
		return err
	}
	if snap == nil {
		return errors.New("path absent: " + path)
	}
	return json.Unmarshal(snap, out)
}
