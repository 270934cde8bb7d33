package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/davork/chatlink/internal/backend"
)

// Blobs implements backend.Blobs against the gateway's blob endpoints.
type Blobs struct {
	base string
	auth *Auth
	http *http.Client
}

func NewBlobs(baseURL string, auth *Auth) *Blobs {
	return &Blobs{
		base: baseURL,
		auth: auth,
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

func (b *Blobs) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, b.blobURL(path), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	b.auth.authorize(req)

	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", backend.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("uploading %s: gateway returned %s", path, resp.Status)
	}
	return nil
}

func (b *Blobs) DownloadURL(ctx context.Context, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.blobURL(path)+"?alt=url", nil)
	if err != nil {
		return "", err
	}
	b.auth.authorize(req)

	resp, err := b.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", backend.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("resolving %s: gateway returned %s", path, resp.Status)
	}

	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding blob url: %w", err)
	}
	return body.URL, nil
}

func (b *Blobs) blobURL(path string) string {
	return b.base + "/v1/blobs/" + url.PathEscape(path)
}
