package relay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"mangarelay/internal/apierr"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(r *Relay) *gin.Engine {
	e := gin.New()
	NewHandler(r).RegisterRoutes(&e.RouterGroup)
	return e
}

func TestBuildURLRoundTrip(t *testing.T) {
	targets := []string{
		"https://uploads.mangadex.org/covers/abc/def.jpg",
		"https://node.mangadex.network/data/hash/x1-abc.png?token=a&b=c",
		"https://example.org/a path/ü.png#frag",
		"https://example.org/?q=%2F%3F",
	}
	for _, target := range targets {
		u, err := url.Parse(BuildURL(DefaultPath, target))
		require.NoError(t, err)
		require.Equal(t, DefaultPath, u.Path)
		require.Equal(t, target, u.Query().Get(Param))
	}

	require.True(t, strings.HasPrefix(BuildURL("", "x"), DefaultPath+"?"))
	require.True(t, strings.HasPrefix(BuildURL("/api/relay-image", "x"), "/api/relay-image?imageUrl="))
}

func TestValidate(t *testing.T) {
	r := New(Options{AllowedHosts: []string{"mangadex.org", ".mangadex.network"}})

	_, err := r.Validate("")
	require.ErrorIs(t, err, apierr.ErrInvalidArgument)
	require.Equal(t, "No image URL provided", apierr.Message(err))

	for _, bad := range []string{"ftp://uploads.mangadex.org/a", "/relative/path", "https://", "https://evil.example/a.png", "https://notmangadex.org/a"} {
		_, err := r.Validate(bad)
		require.ErrorIs(t, err, apierr.ErrInvalidArgument, bad)
	}

	for _, good := range []string{"https://uploads.mangadex.org/covers/a.jpg", "https://x1.abc.mangadex.network:443/data/h/p.png", "https://MANGADEX.ORG/a"} {
		_, err := r.Validate(good)
		require.NoError(t, err, good)
	}

	open := New(Options{})
	_, err = open.Validate("http://anything.example/a")
	require.NoError(t, err)
}

func TestOpenNonSuccessIsUpstreamUnavailable(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer upstream.Close()

	_, err := New(Options{}).Open(context.Background(), upstream.URL+"/missing.png")
	require.ErrorIs(t, err, apierr.ErrUpstreamUnavailable)
	require.Equal(t, http.StatusInternalServerError, apierr.HTTPStatus(err))
}

func TestOpenSendsClientHeaders(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "mangarelay/test", r.Header.Get("User-Agent"))
		require.Contains(t, r.Header.Get("Accept"), "image/")
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png"))
	}))
	defer upstream.Close()

	a, err := New(Options{UserAgent: "mangarelay/test"}).Open(context.Background(), upstream.URL+"/a.png")
	require.NoError(t, err)
	defer a.Close()
	require.Equal(t, "image/png", a.ContentType)
	require.Equal(t, int64(3), a.ContentLength)
}

func TestHandlerStreamsBodyWithHeaders(t *testing.T) {
	payload := strings.Repeat("\x89PNG-data-", 10000)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = io.WriteString(w, payload)
	}))
	defer upstream.Close()

	e := newEngine(New(Options{}))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, BuildURL(DefaultPath, upstream.URL+"/p.png"), nil)
	e.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "image/png", w.Header().Get("Content-Type"))
	require.Equal(t, "public, max-age=86400", w.Header().Get("Cache-Control"))
	require.Equal(t, payload, w.Body.String())
}

func TestHandlerMissingParam(t *testing.T) {
	e := newEngine(New(Options{}))
	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, DefaultPath, nil))

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.JSONEq(t, `{"error":"No image URL provided"}`, w.Body.String())
}

func TestHandlerUpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer upstream.Close()

	e := newEngine(New(Options{}))
	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, BuildURL(DefaultPath, upstream.URL+"/x.png"), nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.JSONEq(t, `{"error":"Failed to fetch image"}`, w.Body.String())
}

type failingBody struct {
	sent bool
}

func (f *failingBody) Read(p []byte) (int, error) {
	if !f.sent {
		f.sent = true
		return copy(p, "partial"), nil
	}
	return 0, errors.New("connection reset by peer")
}

func (f *failingBody) Close() error { return nil }

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestHandlerAbortsOnMidStreamFailure(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode:    http.StatusOK,
			Header:        http.Header{"Content-Type": []string{"image/jpeg"}},
			Body:          &failingBody{},
			ContentLength: -1,
			Request:       r,
		}, nil
	})}

	e := newEngine(New(Options{HTTPClient: client}))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, BuildURL(DefaultPath, "https://uploads.mangadex.org/a.jpg"), nil)

	require.PanicsWithValue(t, http.ErrAbortHandler, func() { e.ServeHTTP(w, req) })
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "partial", w.Body.String())
}

func TestStreamsBeforeUpstreamFinishes(t *testing.T) {
	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/webp")
		_, _ = io.WriteString(w, "first-chunk")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		_, _ = io.WriteString(w, "second-chunk")
	}))
	defer upstream.Close()

	r := New(Options{BufferSize: 8})
	front := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		a, err := r.Open(req.Context(), upstream.URL+"/s.webp")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer a.Close()
		fw := flushWriter{w}
		_, _ = r.Stream(fw, a)
	}))
	defer front.Close()

	resp, err := http.Get(front.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	first := make([]byte, len("first-chunk"))
	done := make(chan error, 1)
	go func() {
		_, err := io.ReadFull(resp.Body, first)
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("first chunk was not relayed before the upstream finished")
	}
	require.Equal(t, "first-chunk", string(first))

	close(release)
	rest, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "second-chunk", string(rest))
}

type flushWriter struct {
	http.ResponseWriter
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.ResponseWriter.Write(p)
	f.ResponseWriter.(http.Flusher).Flush()
	return n, err
}

func TestOpenCancelsUpstreamWithCaller(t *testing.T) {
	cancelled := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		close(cancelled)
	}))
	defer upstream.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := New(Options{}).Open(ctx, upstream.URL+"/slow.png")
		errc <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("upstream request was not cancelled")
	}
	require.ErrorIs(t, <-errc, apierr.ErrUpstreamUnavailable)
}
