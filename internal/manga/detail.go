package manga

import (
	"context"
	"strings"

	"mangarelay/internal/apierr"
	"mangarelay/internal/mangadex"
	"mangarelay/internal/normalize"
	"mangarelay/pkg/models"
)

// Detail returns one manga with cover, authors and genres resolved.
func (s *Service) Detail(ctx context.Context, id string) (models.Manga, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Manga{}, apierr.InvalidArgument("Manga ID is required")
	}

	res, err := s.upstream.GetManga(ctx, id, mangaIncludes)
	if err != nil {
		return models.Manga{}, entityErr(err, "Manga not found", "Failed to fetch manga details")
	}
	if res.Data == nil || res.Data.ID == "" {
		return models.Manga{}, apierr.NotFound("Manga not found")
	}
	return s.norm.Manga(*res.Data, normalize.CoverOriginal), nil
}

// Chapters returns the translated chapter feed of a manga, newest first.
func (s *Service) Chapters(ctx context.Context, id string) ([]models.Chapter, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apierr.InvalidArgument("Manga ID is required")
	}

	res, err := s.upstream.MangaFeed(ctx, id, mangadex.ChapterQuery{
		Limit:               s.opts.FeedLimit,
		Order:               desc("chapter"),
		TranslatedLanguages: s.opts.TranslatedLanguages,
		Includes:            []string{mangadex.RelScanlationGroup},
	})
	if err != nil {
		return nil, entityErr(err, "No chapters found for this manga", "Failed to fetch chapters")
	}
	if len(res.Data) == 0 {
		return nil, apierr.NotFound("No chapters found for this manga")
	}

	out := make([]models.Chapter, 0, len(res.Data))
	for _, ch := range res.Data {
		out = append(out, s.norm.Chapter(ch))
	}
	return out, nil
}

// Statistics returns rating and follow counters for a manga.
func (s *Service) Statistics(ctx context.Context, id string) (models.Statistics, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Statistics{}, apierr.InvalidArgument("Manga ID is required")
	}

	res, err := s.upstream.MangaStatistics(ctx, id)
	if err != nil {
		return models.Statistics{}, entityErr(err, "No statistics found for this manga", "Failed to fetch manga statistics")
	}
	st, ok := res.Statistics[id]
	if !ok {
		return models.Statistics{}, apierr.NotFound("No statistics found for this manga")
	}

	out := models.Statistics{Follows: st.Follows}
	if st.Rating != nil {
		out.MeanRating = st.Rating.Average
		out.BayesianRating = st.Rating.Bayesian
	}
	return out, nil
}

// ChapterPages resolves the page images of a chapter into relay URLs.
func (s *Service) ChapterPages(ctx context.Context, mangaID, chapterID string, dataSaver bool) (models.ChapterPages, error) {
	if strings.TrimSpace(mangaID) == "" || strings.TrimSpace(chapterID) == "" {
		return models.ChapterPages{}, apierr.InvalidArgument("Manga ID and chapter ID are required")
	}

	res, err := s.upstream.AtHomeServer(ctx, chapterID)
	if err != nil {
		return models.ChapterPages{}, entityErr(err, "Chapter not found", "Failed to fetch chapter pages")
	}
	if res.BaseURL == "" || res.Chapter == nil || res.Chapter.Hash == "" {
		return models.ChapterPages{}, apierr.NotFound("Chapter pages not found")
	}

	images := s.norm.PageURLs(res, dataSaver)
	if len(images) == 0 {
		return models.ChapterPages{}, apierr.NotFound("Chapter pages not found")
	}
	return models.ChapterPages{ChapterID: chapterID, Images: images}, nil
}
