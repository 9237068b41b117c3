package manga

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"mangarelay/internal/apierr"
	"mangarelay/internal/logging"
	"mangarelay/internal/mangadex"
	"mangarelay/internal/metrics"
	"mangarelay/internal/normalize"
	"mangarelay/pkg/models"
)

// RecentlyUpdated returns up to RecentTarget distinct manga with cover art,
// ordered by how recently a translated chapter was published for them.
//
// Manga ids are discovered from the global chapter listing, then resolved in
// one batch. When too few of them have covers, the generic recently-updated
// manga listing tops the result up.
func (s *Service) RecentlyUpdated(ctx context.Context) ([]models.Manga, error) {
	target := s.opts.RecentTarget

	ids, err := s.discoverRecent(ctx)
	if err != nil {
		return nil, err
	}

	var batch, fallback []models.Manga
	if s.opts.SpeculativeFallback {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			batch, err = s.fetchBatch(gctx, ids)
			return err
		})
		g.Go(func() error {
			var err error
			fallback, err = s.fetchFallback(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else if batch, err = s.fetchBatch(ctx, ids); err != nil {
		return nil, err
	}

	out := withCover(batch)
	if len(out) < target {
		if !s.opts.SpeculativeFallback {
			logging.Ctx(ctx).Info().Int("found", len(out)).Int("target", target).
				Msg("recently updated: topping up from fallback listing")
			if fallback, err = s.fetchFallback(ctx); err != nil {
				return nil, err
			}
		}
		metrics.FallbackTotal.Inc()
		out = appendMissing(out, withCover(fallback), target)
	}

	if len(out) == 0 {
		return nil, apierr.Upstream("No recently updated manga found", nil)
	}
	if len(out) > target {
		out = out[:target]
	}
	return out, nil
}

// discoverRecent scans the chapter listing newest-first and collects distinct
// manga ids in first-seen order.
func (s *Service) discoverRecent(ctx context.Context) ([]string, error) {
	target := s.opts.RecentTarget
	pageSize := s.opts.DiscoveryPageSize

	seen := make(map[string]struct{}, target)
	ids := make([]string, 0, target)
	pages := 0
	defer func() { metrics.DiscoveryPages.Observe(float64(pages)) }()

	for offset := 0; len(ids) < target && offset+pageSize <= s.opts.DiscoveryOffsetCap; offset += pageSize {
		res, err := s.upstream.ListChapters(ctx, mangadex.ChapterQuery{
			Limit:               pageSize,
			Offset:              offset,
			Order:               desc("updatedAt"),
			TranslatedLanguages: s.opts.TranslatedLanguages,
		})
		pages++
		if err != nil {
			return nil, apierr.Upstream("Failed to fetch recently updated manga", err)
		}
		if len(res.Data) == 0 {
			break
		}

		for _, ch := range res.Data {
			rel, ok := normalize.FindRelationship(ch.Relationships, mangadex.RelManga)
			if !ok || rel.ID == "" {
				continue
			}
			if _, dup := seen[rel.ID]; dup {
				continue
			}
			seen[rel.ID] = struct{}{}
			ids = append(ids, rel.ID)
			if len(ids) == target {
				break
			}
		}
		logging.Ctx(ctx).Debug().Int("offset", offset).Int("ids", len(ids)).Msg("recently updated: discovery page")
	}
	return ids, nil
}

// fetchBatch resolves ids in one call and returns them in the order given.
func (s *Service) fetchBatch(ctx context.Context, ids []string) ([]models.Manga, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	res, err := s.upstream.ListManga(ctx, mangadex.MangaQuery{
		IDs:      ids,
		Limit:    len(ids),
		Includes: mangaIncludes,
	})
	if err != nil {
		return nil, apierr.Upstream("Failed to fetch recently updated manga", err)
	}

	byID := make(map[string]mangadex.Manga, len(res.Data))
	for _, m := range res.Data {
		byID[m.ID] = m
	}
	out := make([]models.Manga, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, s.norm.Manga(m, normalize.CoverOriginal))
		}
	}
	return out, nil
}

func (s *Service) fetchFallback(ctx context.Context) ([]models.Manga, error) {
	res, err := s.upstream.ListManga(ctx, mangadex.MangaQuery{
		Limit:    s.opts.FallbackLimit,
		Order:    desc("updatedAt"),
		Includes: mangaIncludes,
	})
	if err != nil {
		return nil, apierr.Upstream("Failed to fetch recently updated manga", err)
	}
	return s.norm.MangaList(res.Data, normalize.CoverOriginal), nil
}

func withCover(list []models.Manga) []models.Manga {
	out := make([]models.Manga, 0, len(list))
	for _, m := range list {
		if m.HasCover() {
			out = append(out, m)
		}
	}
	return out
}

// appendMissing appends entries of extra whose id is not yet in list until
// list holds limit entries.
func appendMissing(list, extra []models.Manga, limit int) []models.Manga {
	have := make(map[string]struct{}, len(list))
	for _, m := range list {
		have[m.ID] = struct{}{}
	}
	for _, m := range extra {
		if len(list) >= limit {
			break
		}
		if _, dup := have[m.ID]; dup {
			continue
		}
		have[m.ID] = struct{}{}
		list = append(list, m)
	}
	return list
}

// Popular returns the first page of the recency-ordered manga listing.
func (s *Service) Popular(ctx context.Context) ([]models.Manga, error) {
	res, err := s.upstream.ListManga(ctx, mangadex.MangaQuery{
		Limit:    s.opts.PopularLimit,
		Order:    desc("updatedAt"),
		Includes: mangaIncludes,
	})
	if err != nil {
		return nil, apierr.Upstream("Failed to fetch popular manga", err)
	}
	if len(res.Data) == 0 {
		return nil, apierr.Upstream("No popular manga found", nil)
	}
	return s.norm.MangaList(res.Data, normalize.CoverOriginal), nil
}

// PopularRecent returns the most followed manga created within the
// configured window, with 512px cover thumbnails.
func (s *Service) PopularRecent(ctx context.Context) ([]models.Manga, error) {
	since := s.now().Add(-s.opts.PopularRecentWindow).UTC().Format(upstreamTimeLayout)
	res, err := s.upstream.ListManga(ctx, mangadex.MangaQuery{
		Limit:          s.opts.PopularLimit,
		Order:          desc("followedCount"),
		CreatedAtSince: since,
		Includes:       []string{mangadex.RelAuthor, mangadex.RelArtist, mangadex.RelCoverArt},
	})
	if err != nil {
		return nil, apierr.Upstream("Failed to fetch popular manga", err)
	}
	return s.norm.MangaList(res.Data, normalize.Cover512), nil
}

// Search runs a title search. Queries shorter than SearchMinQuery runes are
// rejected without calling the upstream.
func (s *Service) Search(ctx context.Context, query string, limit, offset int) (models.SearchPage, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < s.opts.SearchMinQuery {
		return models.SearchPage{}, apierr.InvalidArgument(
			fmt.Sprintf("Search query must be at least %d characters", s.opts.SearchMinQuery))
	}
	limit, offset = s.window(limit, offset)

	res, err := s.upstream.ListManga(ctx, mangadex.MangaQuery{
		Title:    query,
		Limit:    limit,
		Offset:   offset,
		Includes: mangaIncludes,
	})
	if err != nil {
		return models.SearchPage{}, apierr.Upstream("Failed to search manga", err)
	}
	return s.page(res, limit, offset), nil
}

// Browse lists manga with a translation in one of the configured languages.
func (s *Service) Browse(ctx context.Context, limit, offset int) (models.SearchPage, error) {
	limit, offset = s.window(limit, offset)

	res, err := s.upstream.ListManga(ctx, mangadex.MangaQuery{
		Limit:                        limit,
		Offset:                       offset,
		Includes:                     mangaIncludes,
		AvailableTranslatedLanguages: s.opts.TranslatedLanguages,
	})
	if err != nil {
		return models.SearchPage{}, apierr.Upstream("Failed to fetch manga list", err)
	}
	return s.page(res, limit, offset), nil
}

func (s *Service) window(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = s.opts.SearchDefaultLimit
	}
	if limit > s.opts.SearchMaxLimit {
		limit = s.opts.SearchMaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *Service) page(res *mangadex.MangaList, limit, offset int) models.SearchPage {
	data := res.Data
	if len(data) > limit {
		data = data[:limit]
	}
	return models.SearchPage{
		Mangas: s.norm.MangaList(data, normalize.CoverOriginal),
		Pagination: models.Pagination{
			CurrentOffset: offset,
			Limit:         limit,
			Total:         res.Total,
		},
	}
}
