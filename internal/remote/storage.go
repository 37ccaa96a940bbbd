package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ObjectStorage: REST storage w stylu bucket/obiekt (POST /object/{bucket}/{name}).
type ObjectStorage struct {
	BaseURL       string
	Bucket        string
	APIKey        string
	PublicBaseURL string // pusty = {BaseURL}/object/public/{bucket}

	http *http.Client
}

func NewObjectStorage(baseURL, bucket, apiKey, publicBaseURL string) *ObjectStorage {
	return &ObjectStorage{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		Bucket:        bucket,
		APIKey:        apiKey,
		PublicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		http:          &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled: false, gdy storage nie jest skonfigurowany.
func (o *ObjectStorage) Enabled() bool {
	return o != nil && o.BaseURL != "" && o.Bucket != ""
}

// Upload wysyła blob (nadpisując istniejący obiekt) i zwraca publiczny URL.
func (o *ObjectStorage) Upload(ctx context.Context, name, contentType string, blob []byte) (string, error) {
	if !o.Enabled() {
		return "", fmt.Errorf("object storage: not configured")
	}
	u := fmt.Sprintf("%s/object/%s/%s", o.BaseURL, url.PathEscape(o.Bucket), escapeName(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(blob))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")
	req.Header.Set("User-Agent", "pos2cloud 1.0")
	if o.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.APIKey)
		req.Header.Set("apikey", o.APIKey)
	}

	resp, err := o.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("upload %s: http %d: %s", name, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return o.PublicURL(name), nil
}

func (o *ObjectStorage) PublicURL(name string) string {
	base := o.PublicBaseURL
	if base == "" {
		base = fmt.Sprintf("%s/object/public/%s", o.BaseURL, url.PathEscape(o.Bucket))
	}
	return base + "/" + escapeName(name)
}

func escapeName(name string) string {
	parts := strings.Split(strings.TrimLeft(name, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
