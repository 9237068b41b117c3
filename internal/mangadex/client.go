// Package mangadex is a typed client for the public MangaDex REST API.
package mangadex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"mangarelay/internal/logging"
	"mangarelay/internal/metrics"
)

// DefaultBaseURL is the public MangaDex API.
const DefaultBaseURL = "https://api.mangadex.org"

// StatusError is returned when the upstream answers with a non-2xx status.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mangadex: %s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// BreakerOptions tune the circuit breaker guarding upstream calls.
type BreakerOptions struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

type Options struct {
	BaseURL   string
	UserAgent string
	// Timeout bounds each call including body decode.
	Timeout time.Duration
	// RequestsPerSecond <= 0 disables client-side rate limiting.
	RequestsPerSecond float64
	Burst             int
	Breaker           BreakerOptions
	HTTPClient        *http.Client
	// OnStateChange is called after the breaker changes state.
	OnStateChange func(from, to gobreaker.State)
}

// Client is safe for concurrent use. All calls share one http.Client,
// one rate limiter and one circuit breaker.
type Client struct {
	baseURL   string
	userAgent string
	timeout   time.Duration
	http      *http.Client
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker[struct{}]
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Transport: http.DefaultTransport}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		userAgent: opts.UserAgent,
		timeout:   opts.Timeout,
		http:      opts.HTTPClient,
		limiter:   rate.NewLimiter(limit, burst),
	}
	c.breaker = gobreaker.NewCircuitBreaker[struct{}](breakerSettings(opts))
	metrics.CircuitBreakerState.WithLabelValues("mangadex").Set(0)
	return c
}

func breakerSettings(opts Options) gobreaker.Settings {
	b := opts.Breaker
	if b.MinRequests == 0 {
		b.MinRequests = 5
	}
	if b.FailureRatio <= 0 {
		b.FailureRatio = 0.6
	}
	if b.Timeout <= 0 {
		b.Timeout = 30 * time.Second
	}

	return gobreaker.Settings{
		Name:        "mangadex",
		MaxRequests: b.MaxRequests,
		Interval:    b.Interval,
		Timeout:     b.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < b.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= b.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var se *StatusError
			if errors.As(err, &se) {
				return se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			l := logging.Component("mangadex")
			l.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state changed")
			if opts.OnStateChange != nil {
				opts.OnStateChange(from, to)
			}
		},
	}
}

// State returns the current circuit breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// ListManga queries /manga.
func (c *Client) ListManga(ctx context.Context, q MangaQuery) (*MangaList, error) {
	var out MangaList
	if err := c.get(ctx, "manga.list", "/manga", q.values(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetManga fetches a single manga record.
func (c *Client) GetManga(ctx context.Context, id string, includes []string) (*MangaEntity, error) {
	q := url.Values{}
	for _, inc := range includes {
		q.Add("includes[]", inc)
	}
	var out MangaEntity
	if err := c.get(ctx, "manga.get", "/manga/"+url.PathEscape(id), q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MangaFeed lists the chapters of one manga.
func (c *Client) MangaFeed(ctx context.Context, id string, q ChapterQuery) (*ChapterList, error) {
	var out ChapterList
	if err := c.get(ctx, "manga.feed", "/manga/"+url.PathEscape(id)+"/feed", q.values(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListChapters queries /chapter.
func (c *Client) ListChapters(ctx context.Context, q ChapterQuery) (*ChapterList, error) {
	var out ChapterList
	if err := c.get(ctx, "chapter.list", "/chapter", q.values(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MangaStatistics fetches rating and follow counters for one manga.
func (c *Client) MangaStatistics(ctx context.Context, id string) (*StatisticsResponse, error) {
	var out StatisticsResponse
	if err := c.get(ctx, "statistics", "/statistics/manga/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AtHomeServer resolves the image server for a chapter.
func (c *Client) AtHomeServer(ctx context.Context, chapterID string) (*AtHomeServer, error) {
	var out AtHomeServer
	if err := c.get(ctx, "at_home", "/at-home/server/"+url.PathEscape(chapterID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("mangadex: %s: rate limit: %w", endpoint, err)
	}

	start := time.Now()
	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.do(ctx, endpoint, path, params, out)
	})
	metrics.RecordUpstreamCall(endpoint, outcome(err), time.Since(start))

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("mangadex: %s: %w", endpoint, err)
	}
	return err
}

func (c *Client) do(ctx context.Context, endpoint, path string, params url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("mangadex: %s: build request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("mangadex: %s: request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("mangadex: %s: decode: %w", endpoint, err)
	}
	return nil
}

func outcome(err error) string {
	var se *StatusError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &se):
		return fmt.Sprintf("status_%d", se.StatusCode)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
