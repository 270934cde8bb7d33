package memory

import (
	"context"
	"fmt"
	"net/url"
	"sync"
)

// Blobs is an in-process implementation of backend.Blobs. Download URLs are
// stable per path so message records written against this backend stay valid.
type Blobs struct {
	mu      sync.Mutex
	objects map[string]blob
}

type blob struct {
	data        []byte
	contentType string
}

func NewBlobs() *Blobs {
	return &Blobs{objects: make(map[string]blob)}
}

func (b *Blobs) Upload(_ context.Context, path string, data []byte, contentType string) error {
	if path == "" {
		return fmt.Errorf("empty blob path")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	b.objects[path] = blob{data: stored, contentType: contentType}
	return nil
}

func (b *Blobs) DownloadURL(_ context.Context, path string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.objects[path]; !ok {
		return "", fmt.Errorf("blob %q not found", path)
	}
	return "https://blobs.chatlink.local/o/" + url.PathEscape(path), nil
}

// Len reports the number of stored objects.
func (b *Blobs) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}
