// Package manga serves the manga read API: single-entity details, the
// aggregated listings and search.
package manga

import (
	"context"
	"time"

	"mangarelay/internal/apierr"
	"mangarelay/internal/mangadex"
	"mangarelay/internal/normalize"
)

// Upstream is the subset of the MangaDex client used by Service.
type Upstream interface {
	ListManga(ctx context.Context, q mangadex.MangaQuery) (*mangadex.MangaList, error)
	GetManga(ctx context.Context, id string, includes []string) (*mangadex.MangaEntity, error)
	MangaFeed(ctx context.Context, id string, q mangadex.ChapterQuery) (*mangadex.ChapterList, error)
	ListChapters(ctx context.Context, q mangadex.ChapterQuery) (*mangadex.ChapterList, error)
	MangaStatistics(ctx context.Context, id string) (*mangadex.StatisticsResponse, error)
	AtHomeServer(ctx context.Context, chapterID string) (*mangadex.AtHomeServer, error)
}

// Options tune listing sizes and the recently-updated discovery loop.
type Options struct {
	RecentTarget        int
	DiscoveryPageSize   int
	DiscoveryOffsetCap  int
	FallbackLimit       int
	PopularLimit        int
	FeedLimit           int
	SearchMinQuery      int
	SearchDefaultLimit  int
	SearchMaxLimit      int
	PopularRecentWindow time.Duration
	TranslatedLanguages []string
	// SpeculativeFallback fetches the fallback listing concurrently with
	// the batch lookup instead of only when the batch comes up short.
	SpeculativeFallback bool
}

// DefaultOptions mirrors the upstream's documented limits.
func DefaultOptions() Options {
	return Options{
		RecentTarget:        10,
		DiscoveryPageSize:   100,
		DiscoveryOffsetCap:  500,
		FallbackLimit:       10,
		PopularLimit:        10,
		FeedLimit:           500,
		SearchMinQuery:      3,
		SearchDefaultLimit:  50,
		SearchMaxLimit:      100,
		PopularRecentWindow: 365 * 24 * time.Hour,
		TranslatedLanguages: []string{"en"},
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.RecentTarget <= 0 {
		o.RecentTarget = d.RecentTarget
	}
	if o.DiscoveryPageSize <= 0 {
		o.DiscoveryPageSize = d.DiscoveryPageSize
	}
	if o.DiscoveryOffsetCap <= 0 {
		o.DiscoveryOffsetCap = d.DiscoveryOffsetCap
	}
	if o.FallbackLimit <= 0 {
		o.FallbackLimit = o.RecentTarget
	}
	if o.PopularLimit <= 0 {
		o.PopularLimit = d.PopularLimit
	}
	if o.FeedLimit <= 0 {
		o.FeedLimit = d.FeedLimit
	}
	if o.SearchMinQuery <= 0 {
		o.SearchMinQuery = d.SearchMinQuery
	}
	if o.SearchMaxLimit <= 0 {
		o.SearchMaxLimit = d.SearchMaxLimit
	}
	if o.SearchDefaultLimit <= 0 || o.SearchDefaultLimit > o.SearchMaxLimit {
		o.SearchDefaultLimit = min(d.SearchDefaultLimit, o.SearchMaxLimit)
	}
	if o.PopularRecentWindow <= 0 {
		o.PopularRecentWindow = d.PopularRecentWindow
	}
	if o.TranslatedLanguages == nil {
		o.TranslatedLanguages = d.TranslatedLanguages
	}
	return o
}

// Service is stateless apart from its configuration and is safe for
// concurrent use.
type Service struct {
	upstream Upstream
	norm     normalize.Normalizer
	opts     Options
	now      func() time.Time
}

func NewService(up Upstream, norm normalize.Normalizer, opts Options) *Service {
	return &Service{upstream: up, norm: norm, opts: opts.withDefaults(), now: time.Now}
}

var mangaIncludes = []string{mangadex.RelCoverArt, mangadex.RelAuthor}

// upstreamTimeLayout is the timestamp format accepted by date filters.
const upstreamTimeLayout = "2006-01-02T15:04:05"

func desc(field string) mangadex.Order {
	return mangadex.Order{Field: field, Direction: "desc"}
}

// entityErr maps an upstream failure on a single-entity lookup. An upstream
// 404 is a confirmed absence.
func entityErr(err error, notFound, failed string) error {
	if mangadex.IsNotFound(err) {
		return apierr.NotFound(notFound)
	}
	return apierr.Upstream(failed, err)
}
