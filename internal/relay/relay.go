// Package relay fetches remote images on behalf of callers and streams them
// back with a long-lived cache header.
package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mangarelay/internal/apierr"
)

const (
	// Param is the query parameter carrying the upstream image URL.
	Param = "imageUrl"
	// DefaultPath is where the relay endpoint is mounted.
	DefaultPath = "/relay-image"

	defaultAccept = "image/avif,image/webp,image/apng,image/*,*/*;q=0.8"
)

// BuildURL returns the relay URL that serves target through path.
func BuildURL(path, target string) string {
	if path == "" {
		path = DefaultPath
	}
	return path + "?" + Param + "=" + url.QueryEscape(target)
}

type Options struct {
	UserAgent string
	// CacheMaxAge is advertised to callers in Cache-Control.
	CacheMaxAge time.Duration
	// HeaderTimeout bounds the wait for upstream response headers.
	HeaderTimeout time.Duration
	// TransferTimeout bounds a whole relay, body included. Zero disables it.
	TransferTimeout time.Duration
	// AllowedHosts restricts targets by host suffix. Empty allows any host.
	AllowedHosts []string
	BufferSize   int
	HTTPClient   *http.Client
}

// Relay is safe for concurrent use.
type Relay struct {
	opts   Options
	client *http.Client
}

func New(opts Options) *Relay {
	if opts.CacheMaxAge <= 0 {
		opts.CacheMaxAge = 24 * time.Hour
	}
	if opts.HeaderTimeout <= 0 {
		opts.HeaderTimeout = 15 * time.Second
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 32 * 1024
	}
	client := opts.HTTPClient
	if client == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.ResponseHeaderTimeout = opts.HeaderTimeout
		client = &http.Client{Transport: tr}
	}
	return &Relay{opts: opts, client: client}
}

// CacheControl is the header value sent with every relayed body.
func (r *Relay) CacheControl() string {
	return "public, max-age=" + strconv.Itoa(int(r.opts.CacheMaxAge/time.Second))
}

// Asset is an open upstream response. Close must be called.
type Asset struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	cancel        context.CancelFunc
}

func (a *Asset) Close() error {
	err := a.Body.Close()
	if a.cancel != nil {
		a.cancel()
	}
	return err
}

// Validate checks that target is an absolute http(s) URL on an allowed host.
func (r *Relay) Validate(target string) (*url.URL, error) {
	if strings.TrimSpace(target) == "" {
		return nil, apierr.InvalidArgument("No image URL provided")
	}
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apierr.InvalidArgument("Invalid image URL")
	}
	if !r.hostAllowed(u.Hostname()) {
		return nil, apierr.InvalidArgument("Image host not allowed")
	}
	return u, nil
}

func (r *Relay) hostAllowed(host string) bool {
	if len(r.opts.AllowedHosts) == 0 {
		return true
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, allowed := range r.opts.AllowedHosts {
		allowed = strings.ToLower(strings.TrimPrefix(allowed, "."))
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

// Open issues the upstream request. Cancelling ctx aborts the transfer.
func (r *Relay) Open(ctx context.Context, target string) (*Asset, error) {
	u, err := r.Validate(target)
	if err != nil {
		return nil, err
	}

	cancel := context.CancelFunc(func() {})
	if r.opts.TransferTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.opts.TransferTimeout)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		cancel()
		return nil, apierr.InvalidArgument("Invalid image URL")
	}
	req.Header.Set("Accept", defaultAccept)
	if r.opts.UserAgent != "" {
		req.Header.Set("User-Agent", r.opts.UserAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		cancel()
		return nil, apierr.Upstream("Failed to fetch image", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return nil, apierr.Upstream("Failed to fetch image", fmt.Errorf("relay: upstream status %d", resp.StatusCode))
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		cancel()
		return nil, apierr.Upstream("Failed to fetch image", fmt.Errorf("relay: upstream sent no body"))
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	return &Asset{Body: resp.Body, ContentType: ct, ContentLength: resp.ContentLength, cancel: cancel}, nil
}

// Stream writes the asset headers and copies the body to w without
// buffering it whole. A non-nil error means the response is truncated.
func (r *Relay) Stream(w http.ResponseWriter, a *Asset) (int64, error) {
	h := w.Header()
	h.Set("Content-Type", a.ContentType)
	h.Set("Cache-Control", r.CacheControl())
	if a.ContentLength >= 0 {
		h.Set("Content-Length", strconv.FormatInt(a.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	buf := make([]byte, r.opts.BufferSize)
	n, err := io.CopyBuffer(w, a.Body, buf)
	if err == nil && a.ContentLength >= 0 && n != a.ContentLength {
		err = fmt.Errorf("relay: short body: got %d of %d bytes", n, a.ContentLength)
	}
	return n, err
}
