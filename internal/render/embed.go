package render

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ImageEmbedder downloads images and inlines them as data: uris. Results,
// failures included, are remembered per url.
type ImageEmbedder struct {
	logger   *slog.Logger
	client   *http.Client
	maxBytes int64
	timeout  time.Duration
	seen     *lru.Cache[string, string]
}

func NewImageEmbedder(logger *slog.Logger, client *http.Client, maxBytes int64, timeout time.Duration, size int) (*ImageEmbedder, error) {
	if size <= 0 {
		size = 128
	}
	seen, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("image cache: %w", err)
	}
	return &ImageEmbedder{logger: logger, client: client, maxBytes: maxBytes, timeout: timeout, seen: seen}, nil
}

// DataURI fetches url within both ctx and the embedder timeout. Failures
// caused by ctx ending are not remembered.
func (e *ImageEmbedder) DataURI(ctx context.Context, url string) (string, bool) {
	if v, ok := e.seen.Get(url); ok {
		return v, v != ""
	}
	if ctx.Err() != nil {
		return "", false
	}
	v, err := e.fetch(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return "", false
		}
		e.logger.WarnContext(ctx, "image embedding failed", "url", url, "err", err)
		v = ""
	}
	e.seen.Add(url, v)
	return v, v != ""
}

func (e *ImageEmbedder) fetch(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "image/") {
		return "", fmt.Errorf("content type %q is not an image", ct)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	if int64(len(b)) > e.maxBytes {
		return "", fmt.Errorf("image larger than %d bytes", e.maxBytes)
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(b), nil
}
