// Package client is a typed HTTP client for the mangarelay API.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"mangarelay/pkg/models"
)

const DefaultBaseURL = "http://localhost:8080"

// APIError is returned for non-2xx responses. Message carries the "error"
// field of the body when present.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for baseURL. A nil hc uses a 30s timeout client.
func New(baseURL string, hc *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

func (c *Client) Recent(ctx context.Context) ([]models.Manga, error) {
	return getJSON[[]models.Manga](ctx, c, "/entities/recent", nil)
}

func (c *Client) Popular(ctx context.Context) ([]models.Manga, error) {
	return getJSON[[]models.Manga](ctx, c, "/entities/popular", nil)
}

func (c *Client) PopularRecent(ctx context.Context) ([]models.Manga, error) {
	return getJSON[[]models.Manga](ctx, c, "/entities/popular-recent", nil)
}

// Browse lists manga. Zero limit or offset use the server defaults.
func (c *Client) Browse(ctx context.Context, limit, offset int) (models.SearchPage, error) {
	return getJSON[models.SearchPage](ctx, c, "/entities", pageParams(limit, offset))
}

func (c *Client) Search(ctx context.Context, query string, limit, offset int) (models.SearchPage, error) {
	q := pageParams(limit, offset)
	q.Set("query", query)
	return getJSON[models.SearchPage](ctx, c, "/search", q)
}

func (c *Client) Manga(ctx context.Context, id string) (models.Manga, error) {
	return getJSON[models.Manga](ctx, c, "/entities/"+url.PathEscape(id), nil)
}

func (c *Client) Chapters(ctx context.Context, mangaID string) ([]models.Chapter, error) {
	return getJSON[[]models.Chapter](ctx, c, "/entities/"+url.PathEscape(mangaID)+"/chapters", nil)
}

func (c *Client) Statistics(ctx context.Context, mangaID string) (models.Statistics, error) {
	return getJSON[models.Statistics](ctx, c, "/entities/"+url.PathEscape(mangaID)+"/statistics", nil)
}

func (c *Client) ChapterPages(ctx context.Context, mangaID, chapterID string, dataSaver bool) (models.ChapterPages, error) {
	q := url.Values{}
	if dataSaver {
		q.Set("quality", "data-saver")
	}
	path := "/entities/" + url.PathEscape(mangaID) + "/chapters/" + url.PathEscape(chapterID) + "/pages"
	return getJSON[models.ChapterPages](ctx, c, path, q)
}

func getJSON[T any](ctx context.Context, c *Client, path string, q url.Values) (T, error) {
	var out T
	err := c.get(ctx, path, q, &out)
	return out, err
}

func pageParams(limit, offset int) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	return q
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &body) == nil && body.Error != "" {
			msg = body.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
