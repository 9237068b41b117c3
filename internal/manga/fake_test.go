package manga

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"

	"mangarelay/internal/mangadex"
	"mangarelay/internal/normalize"
	"mangarelay/pkg/models"
)

// fakeUpstream serves canned MangaDex responses and records every call.
type fakeUpstream struct {
	mu sync.Mutex

	chapterPages map[int][]mangadex.Chapter // keyed by offset
	chapterErr   error
	byID         map[string]mangadex.Manga
	fallback     []mangadex.Manga
	search       *mangadex.MangaList
	listErr      error
	entity       *mangadex.MangaEntity
	entityErr    error
	feed         *mangadex.ChapterList
	feedErr      error
	stats        *mangadex.StatisticsResponse
	statsErr     error
	atHome       *mangadex.AtHomeServer
	atHomeErr    error

	chapterCalls []mangadex.ChapterQuery
	mangaCalls   []mangadex.MangaQuery
	calls        int
}

func newFake() *fakeUpstream {
	return &fakeUpstream{chapterPages: map[int][]mangadex.Chapter{}, byID: map[string]mangadex.Manga{}}
}

func (f *fakeUpstream) ListManga(_ context.Context, q mangadex.MangaQuery) (*mangadex.MangaList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.mangaCalls = append(f.mangaCalls, q)
	if f.listErr != nil {
		return nil, f.listErr
	}

	switch {
	case len(q.IDs) > 0:
		// upstream does not preserve ids[] order; answer in reverse
		out := &mangadex.MangaList{Result: "ok"}
		for i := len(q.IDs) - 1; i >= 0; i-- {
			if m, ok := f.byID[q.IDs[i]]; ok {
				out.Data = append(out.Data, m)
			}
		}
		return out, nil
	case q.Title != "":
		if f.search == nil {
			return &mangadex.MangaList{Result: "ok"}, nil
		}
		return f.search, nil
	default:
		data := f.fallback
		if q.Limit > 0 && len(data) > q.Limit {
			data = data[:q.Limit]
		}
		return &mangadex.MangaList{Result: "ok", Data: data}, nil
	}
}

func (f *fakeUpstream) GetManga(_ context.Context, id string, _ []string) (*mangadex.MangaEntity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.entity, f.entityErr
}

func (f *fakeUpstream) MangaFeed(_ context.Context, _ string, q mangadex.ChapterQuery) (*mangadex.ChapterList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.chapterCalls = append(f.chapterCalls, q)
	return f.feed, f.feedErr
}

func (f *fakeUpstream) ListChapters(_ context.Context, q mangadex.ChapterQuery) (*mangadex.ChapterList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.chapterCalls = append(f.chapterCalls, q)
	if f.chapterErr != nil {
		return nil, f.chapterErr
	}
	return &mangadex.ChapterList{Result: "ok", Data: f.chapterPages[q.Offset], Offset: q.Offset, Limit: q.Limit}, nil
}

func (f *fakeUpstream) MangaStatistics(context.Context, string) (*mangadex.StatisticsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.stats, f.statsErr
}

func (f *fakeUpstream) AtHomeServer(context.Context, string) (*mangadex.AtHomeServer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.atHome, f.atHomeErr
}

func (f *fakeUpstream) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// mangaRecord builds an upstream manga; cover controls whether a cover_art
// relationship with attributes is attached.
func mangaRecord(id string, cover bool) mangadex.Manga {
	m := mangadex.Manga{
		ID:   id,
		Type: "manga",
		Attributes: mangadex.MangaAttributes{
			Title:     mangadex.LocalizedString{{Lang: "en", Value: "Title " + id}},
			UpdatedAt: "2024-05-01T00:00:00+00:00",
		},
		Relationships: []mangadex.Relationship{
			{ID: "author-" + id, Type: mangadex.RelAuthor, Attributes: json.RawMessage(`{"name":"Author ` + id + `"}`)},
		},
	}
	if cover {
		m.Relationships = append(m.Relationships, mangadex.Relationship{
			ID:         "cover-" + id,
			Type:       mangadex.RelCoverArt,
			Attributes: json.RawMessage(fmt.Sprintf(`{"fileName":"%s.jpg"}`, id)),
		})
	}
	return m
}

func chapterOf(mangaID string) mangadex.Chapter {
	return mangadex.Chapter{
		ID:   "ch-" + mangaID,
		Type: "chapter",
		Relationships: []mangadex.Relationship{
			{ID: "group-1", Type: mangadex.RelScanlationGroup},
			{ID: mangaID, Type: mangadex.RelManga},
		},
	}
}

func chaptersOf(ids ...string) []mangadex.Chapter {
	out := make([]mangadex.Chapter, 0, len(ids))
	for _, id := range ids {
		out = append(out, chapterOf(id))
	}
	return out
}

var testNormalizer = normalize.Normalizer{RelayPath: "/relay-image"}

func newTestService(f *fakeUpstream, mod func(*Options)) *Service {
	opts := DefaultOptions()
	if mod != nil {
		mod(&opts)
	}
	return NewService(f, testNormalizer, opts)
}

func mangaIDs(list []models.Manga) []string {
	out := make([]string, 0, len(list))
	for _, m := range list {
		out = append(out, m.ID)
	}
	return out
}
