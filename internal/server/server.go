// Package server assembles the HTTP surface: the gin engine with its
// middleware chain, operational endpoints, and the outer CORS and rate
// limiting wrappers.
package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	gobreaker "github.com/sony/gobreaker/v2"

	"mangarelay/internal/manga"
	"mangarelay/internal/mangadex"
	"mangarelay/internal/middleware"
	"mangarelay/internal/normalize"
	"mangarelay/internal/relay"
	"mangarelay/pkg/utils"
)

// BreakerState reports the upstream circuit breaker state.
type BreakerState interface {
	State() gobreaker.State
}

// Deps are the collaborators the router serves from.
type Deps struct {
	Manga    *manga.Service
	Relay    *relay.Relay
	Upstream BreakerState
}

// New builds the complete handler for cfg.
func New(cfg utils.ServerConfig, deps Deps) http.Handler {
	var h http.Handler = Router(cfg, deps)
	if cfg.RateLimitRequests > 0 {
		h = httprate.LimitByIP(cfg.RateLimitRequests, cfg.RateLimitWindow)(h)
	}
	if len(cfg.CORSOrigins) > 0 {
		h = cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
			ExposedHeaders: []string{middleware.RequestIDHeader},
			MaxAge:         300,
		})(h)
	}
	return h
}

// Router returns the gin engine without the outer wrappers.
func Router(cfg utils.ServerConfig, deps Deps) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies(nil)
	r.Use(middleware.Recover(), middleware.RequestID(), middleware.AccessLog(), middleware.Metrics())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		state := gobreaker.StateClosed
		if deps.Upstream != nil {
			state = deps.Upstream.State()
		}
		if state == gobreaker.StateOpen {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "upstream": state.String()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "upstream": state.String()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	base := r.Group(cfg.BasePath)

	// Relay routes stay outside Deadline; relay.Options.TransferTimeout bounds them.
	relay.NewHandler(deps.Relay).RegisterRoutes(base)

	api := base.Group("")
	api.Use(middleware.Deadline(cfg.RequestTimeout))
	manga.NewHandler(deps.Manga).RegisterRoutes(api)

	return r
}

// RelayPath is the public path of the image relay under basePath.
func RelayPath(basePath string) string {
	return strings.TrimRight(basePath, "/") + relay.DefaultPath
}

// ServiceOptions maps aggregator configuration onto manga.Options.
func ServiceOptions(agg utils.AggregatorConfig, languages []string) manga.Options {
	return manga.Options{
		RecentTarget:        agg.RecentTarget,
		DiscoveryPageSize:   agg.DiscoveryPageSize,
		DiscoveryOffsetCap:  agg.DiscoveryOffsetCap,
		FallbackLimit:       agg.FallbackLimit,
		PopularLimit:        agg.PopularLimit,
		FeedLimit:           agg.FeedLimit,
		SearchMinQuery:      agg.SearchMinQuery,
		SearchDefaultLimit:  agg.SearchDefaultLimit,
		SearchMaxLimit:      agg.SearchMaxLimit,
		PopularRecentWindow: agg.PopularRecentWindow,
		TranslatedLanguages: languages,
		SpeculativeFallback: agg.SpeculativeFallback,
	}
}

// NewNormalizer builds the normalizer for cfg.
func NewNormalizer(cfg *utils.Config) normalize.Normalizer {
	return normalize.Normalizer{
		Locales:      cfg.Upstream.Locales,
		CoverBaseURL: cfg.Upstream.CoverBaseURL,
		RelayPath:    RelayPath(cfg.Server.BasePath),
	}
}

// UpstreamOptions maps upstream configuration onto mangadex.Options.
func UpstreamOptions(up utils.UpstreamConfig) mangadex.Options {
	return mangadex.Options{
		BaseURL:           up.BaseURL,
		UserAgent:         up.UserAgent,
		Timeout:           up.Timeout,
		RequestsPerSecond: up.RequestsPerSecond,
		Burst:             up.Burst,
		Breaker: mangadex.BreakerOptions{
			MaxRequests:  up.Breaker.MaxRequests,
			Interval:     up.Breaker.Interval,
			Timeout:      up.Breaker.Timeout,
			MinRequests:  up.Breaker.MinRequests,
			FailureRatio: up.Breaker.FailureRatio,
		},
	}
}

// RelayOptions maps relay configuration onto relay.Options.
func RelayOptions(rc utils.RelayConfig) relay.Options {
	return relay.Options{
		UserAgent:       rc.UserAgent,
		CacheMaxAge:     rc.CacheMaxAge,
		HeaderTimeout:   rc.HeaderTimeout,
		TransferTimeout: rc.TransferTimeout,
		AllowedHosts:    rc.AllowedHosts,
		BufferSize:      rc.BufferSize,
	}
}
