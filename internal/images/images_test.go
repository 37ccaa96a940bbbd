package images

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartek5186/pos2cloud/internal/db"
	"github.com/bartek5186/pos2cloud/internal/remote"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

func newStore(t *testing.T, up Uploader) (*Store, *db.Handle) {
	t.Helper()
	h, err := db.OpenAt(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, h.Migrate())
	t.Cleanup(func() { _ = h.Close() })
	return New(zerolog.Nop(), h, up, "/images"), h
}

func TestFetchFailureReturnsOriginalURL(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if fail.Load() {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngHeader)
	}))
	defer srv.Close()

	s, h := newStore(t, nil)
	ctx := context.Background()
	url := srv.URL + "/p/1.png"

	assert.Equal(t, url, s.GetOrFetch(ctx, url))
	_, err := h.GetCachedImage(ctx, url)
	assert.ErrorIs(t, err, db.ErrNotFound)

	// porażka nie jest zapamiętana
	fail.Store(false)
	served := s.GetOrFetch(ctx, url)
	assert.True(t, strings.HasPrefix(served, "/images/"))
	key, err := KeyFromServed(strings.TrimPrefix(served, "/images/"))
	require.NoError(t, err)
	assert.Equal(t, url, key)

	e, err := s.Open(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, e.Blob)
	assert.Equal(t, "image/png", e.ContentType)

	// trafienie w cache bez sieci
	assert.Equal(t, served, s.GetOrFetch(ctx, url))
	assert.EqualValues(t, 2, hits.Load())
}

func TestConcurrentFetchesShareOneRequest(t *testing.T) {
	release := make(chan struct{})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write(pngHeader)
	}))
	defer srv.Close()

	s, _ := newStore(t, nil)
	url := srv.URL + "/same.png"

	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.GetOrFetch(context.Background(), url)
		}(i)
	}
	require.Eventually(t, func() bool { return hits.Load() == 1 }, 2*time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, s.ServedURL(url), r)
	}
	assert.LessOrEqual(t, hits.Load(), int32(2))
}

func TestNonHTTPAndEmptyURLs(t *testing.T) {
	s, _ := newStore(t, nil)
	ctx := context.Background()
	assert.Equal(t, "", s.GetOrFetch(ctx, ""))
	assert.Equal(t, "local-image:missing", s.GetOrFetch(ctx, "local-image:missing"))
	assert.Equal(t, "data:image/png;base64,AAAA", s.GetOrFetch(ctx, "data:image/png;base64,AAAA"))
}

func TestCaptureAndPublish(t *testing.T) {
	var gotPath, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	storage := remote.NewObjectStorage(srv.URL, "product-images", "key", "https://cdn.example")
	s, _ := newStore(t, storage)
	ctx := context.Background()

	ref, err := s.Capture(ctx, pngHeader, "")
	require.NoError(t, err)
	assert.True(t, s.IsLocal(ref))
	assert.Equal(t, s.ServedURL(ref), s.GetOrFetch(ctx, ref))

	url, err := s.PublishLocal(ctx, ref)
	require.NoError(t, err)
	id := strings.TrimPrefix(ref, LocalScheme)
	assert.Equal(t, "https://cdn.example/"+id+".png", url)
	assert.Equal(t, "/object/product-images/"+id+".png", gotPath)
	assert.Equal(t, "image/png", gotType)
	assert.Equal(t, pngHeader, gotBody)

	// po wysłaniu public URL jest już w cache
	assert.Equal(t, s.ServedURL(url), s.GetOrFetch(ctx, url))
}

func TestPublishWithoutStorage(t *testing.T) {
	s, _ := newStore(t, remote.NewObjectStorage("", "", "", ""))
	ref, err := s.Capture(context.Background(), pngHeader, "image/png")
	require.NoError(t, err)
	_, err = s.PublishLocal(context.Background(), ref)
	assert.ErrorIs(t, err, ErrStorageDisabled)

	same, err := s.PublishLocal(context.Background(), "https://x/y.png")
	require.NoError(t, err)
	assert.Equal(t, "https://x/y.png", same)
}
