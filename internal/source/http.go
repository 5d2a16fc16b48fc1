package source

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"ragqa/internal/domain"
)

const maxBodyBytes = 16 << 20

// HTTPFetcher downloads web pages and strips them to text.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
}

func NewHTTPFetcher(client *http.Client, userAgent string, timeout time.Duration) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{client: client, userAgent: userAgent, timeout: timeout}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, location string) (domain.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return domain.Document{}, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5")
	resp, err := f.client.Do(req)
	if err != nil {
		return domain.Document{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.Document{}, fmt.Errorf("unexpected status %s", resp.Status)
	}
	body := io.LimitReader(resp.Body, maxBodyBytes)

	var text string
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "" || strings.Contains(mediaType, "html") {
		text, err = ExtractText(body)
	} else {
		var raw []byte
		raw, err = io.ReadAll(body)
		text = string(raw)
	}
	if err != nil {
		return domain.Document{}, err
	}
	if strings.TrimSpace(text) == "" {
		return domain.Document{}, fmt.Errorf("no text content")
	}
	return domain.Document{ID: location, Location: location, Content: text}, nil
}
