package wiki

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/rag-dataset/internal/cache"
)

func newTestFetcher(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Fetcher, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger, _ := test.NewNullLogger()
	opts = append([]Option{
		WithAPIFormat(srv.URL + "/%s/api.php"),
		WithRetry(3, time.Millisecond, 5*time.Millisecond),
		WithLogger(logger),
	}, opts...)
	return NewFetcher(opts...), srv
}

func articleHandler(calls *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		q := r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		if q.Get("exintro") != "" {
			_, _ = w.Write([]byte(`{"query": {"pages": [{"title": "Go (programming language)", "extract": "` + strings.Repeat("g", 600) + `"}]}}`))
			return
		}
		_, _ = w.Write([]byte(`{"query": {"pages": [{"title": "Go (programming language)", "extract": "<p>Go is a language.</p><h2>History</h2><p>Designed at Google.</p>"}]}}`))
	}
}

func TestParseURL(t *testing.T) {
	lang, title, err := ParseURL("https://en.wikipedia.org/wiki/Go_(programming_language)")
	require.NoError(t, err)
	assert.Equal(t, "en", lang)
	assert.Equal(t, "Go_(programming_language)", title)

	lang, title, err = ParseURL("https://de.m.wikipedia.org/wiki/M%C3%BCnchen#Geschichte")
	require.NoError(t, err)
	assert.Equal(t, "de", lang)
	assert.Equal(t, "München", title)

	for _, bad := range []string{
		"",
		"ftp://en.wikipedia.org/wiki/Go",
		"https://example.com/wiki/Go",
		"https://en.wikipedia.org/w/index.php?title=Go",
		"https://en.wikipedia.org/wiki/",
	} {
		_, _, err := ParseURL(bad)
		var fe *FetchError
		assert.True(t, errors.As(err, &fe), bad)
	}
	assert.True(t, IsWikipediaURL("https://fr.wikipedia.org/wiki/Paris"))
}

func TestFetch(t *testing.T) {
	var calls int32
	var mu sync.Mutex
	var seen []string
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.URL.Path+"?"+r.URL.RawQuery)
		mu.Unlock()
		assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
		articleHandler(&calls)(w, r)
	})

	article, err := f.Fetch(context.Background(), "https://en.wikipedia.org/wiki/Go_(programming_language)")
	require.NoError(t, err)
	assert.Equal(t, "Go (programming language)", article.Title)
	assert.Contains(t, article.Content, "<h2>History</h2>")
	assert.Equal(t, "en", article.Lang)
	assert.Len(t, article.Extract, MaxExtractLength)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.True(t, strings.HasPrefix(seen[0], "/en/api.php?"))
	assert.Contains(t, seen[0], "prop=extracts%7Cpageprops")
	assert.Contains(t, seen[0], "exsectionformat=wiki")
	assert.Contains(t, seen[0], "formatversion=2")
	assert.Contains(t, seen[1], "explaintext=1")
	assert.Contains(t, seen[1], "titles=Go+%28programming+language%29")
}

func TestFetchUsesCache(t *testing.T) {
	var calls int32
	c, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)
	f, _ := newTestFetcher(t, articleHandler(&calls), WithCache(c, time.Minute))

	first, err := f.Fetch(context.Background(), "https://en.wikipedia.org/wiki/Go")
	require.NoError(t, err)
	second, err := f.Fetch(context.Background(), "https://en.wikipedia.org/wiki/Go")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "second fetch is served from cache")
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		message string
		calls   int32
	}{
		{name: "missing page", body: `{"query": {"pages": [{"title": "Nope", "missing": true}]}}`, message: "not found", calls: 1},
		{name: "empty extract", body: `{"query": {"pages": [{"title": "Empty", "extract": ""}]}}`, message: "no content", calls: 1},
		{name: "api error", body: `{"error": {"code": "badtitle", "info": "Bad title"}}`, message: "MediaWiki API error", calls: 1},
		{name: "no pages", body: `{"query": {"pages": []}}`, message: "no pages", calls: 1},
		{name: "server error retried", body: `oops`, status: http.StatusBadGateway, message: "status 502", calls: 3},
		{name: "client error not retried", body: `nope`, status: http.StatusForbidden, message: "status 403", calls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				if tt.status != 0 {
					w.WriteHeader(tt.status)
				}
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := f.Fetch(context.Background(), "https://en.wikipedia.org/wiki/Nope")
			var fe *FetchError
			require.True(t, errors.As(err, &fe))
			assert.Contains(t, fe.Error(), tt.message)
			assert.Equal(t, tt.calls, atomic.LoadInt32(&calls))
		})
	}
}

func TestFetchRecoversAfterTransientError(t *testing.T) {
	var calls int32
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		articleHandler(new(int32))(w, r)
	})

	article, err := f.Fetch(context.Background(), "https://en.wikipedia.org/wiki/Go")
	require.NoError(t, err)
	assert.Equal(t, "Go (programming language)", article.Title)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}
