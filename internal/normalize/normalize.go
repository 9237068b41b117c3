// Package normalize flattens MangaDex records into the response models.
package normalize

import (
	"strings"

	"mangarelay/internal/mangadex"
	"mangarelay/internal/relay"
	"mangarelay/pkg/models"
)

const (
	NoTitle         = "No title available"
	NoDescription   = "No description available"
	UnknownGroup    = "Unknown"
	DefaultCoverURL = "https://uploads.mangadex.org/covers"
)

// DefaultLocales is the preferred-locale list used when none is configured.
var DefaultLocales = []string{"en", "en-us"}

// ResolveText picks the first non-empty value among the preferred locales,
// then the first non-empty value in upstream order, then placeholder.
func ResolveText(text mangadex.LocalizedString, preferred []string, placeholder string) string {
	for _, lang := range preferred {
		if v, ok := text.Get(lang); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	for _, e := range text {
		if strings.TrimSpace(e.Value) != "" {
			return e.Value
		}
	}
	return placeholder
}

// FindRelationship returns the first relationship of the given type.
func FindRelationship(rels []mangadex.Relationship, typ string) (mangadex.Relationship, bool) {
	for _, r := range rels {
		if r.Type == typ {
			return r, true
		}
	}
	return mangadex.Relationship{}, false
}

// FilterRelationships returns every relationship of the given type, in order.
func FilterRelationships(rels []mangadex.Relationship, typ string) []mangadex.Relationship {
	var out []mangadex.Relationship
	for _, r := range rels {
		if r.Type == typ {
			out = append(out, r)
		}
	}
	return out
}

// Normalizer carries the settings needed to build public URLs.
type Normalizer struct {
	Locales      []string
	CoverBaseURL string
	// RelayPath is the path of the image relay endpoint.
	RelayPath string
}

func (n Normalizer) locales() []string {
	if len(n.Locales) == 0 {
		return DefaultLocales
	}
	return n.Locales
}

// CoverSize selects a MangaDex cover rendition.
type CoverSize string

const (
	CoverOriginal CoverSize = ""
	Cover256      CoverSize = "256"
	Cover512      CoverSize = "512"
)

// Manga builds the response entity for one upstream record.
func (n Normalizer) Manga(m mangadex.Manga, size CoverSize) models.Manga {
	a := m.Attributes
	out := models.Manga{
		ID:            m.ID,
		Title:         ResolveText(a.Title, n.locales(), NoTitle),
		Description:   ResolveText(a.Description, n.locales(), NoDescription),
		Authors:       []string{},
		Genres:        []string{},
		UpdatedAt:     a.UpdatedAt,
		Status:        a.Status,
		ContentRating: a.ContentRating,
		Year:          a.Year,
	}

	for _, r := range FilterRelationships(m.Relationships, mangadex.RelAuthor) {
		if p, ok := r.Person(); ok {
			out.Authors = append(out.Authors, p.Name)
		}
	}

	seen := map[string]struct{}{}
	for _, t := range a.Tags {
		if t.Attributes.Group != "genre" {
			continue
		}
		name := ResolveText(t.Attributes.Name, n.locales(), "")
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out.Genres = append(out.Genres, name)
	}

	if rel, ok := FindRelationship(m.Relationships, mangadex.RelCoverArt); ok {
		if c, ok := rel.CoverArt(); ok {
			u := n.CoverURL(m.ID, c.FileName, size)
			out.Cover = &u
		}
	}
	return out
}

// MangaList normalizes records preserving their order.
func (n Normalizer) MangaList(list []mangadex.Manga, size CoverSize) []models.Manga {
	out := make([]models.Manga, 0, len(list))
	for _, m := range list {
		out = append(out, n.Manga(m, size))
	}
	return out
}

// CoverURL returns the relay URL of a cover image.
func (n Normalizer) CoverURL(mangaID, fileName string, size CoverSize) string {
	base := n.CoverBaseURL
	if base == "" {
		base = DefaultCoverURL
	}
	target := strings.TrimRight(base, "/") + "/" + mangaID + "/" + fileName
	if size != CoverOriginal {
		target += "." + string(size) + ".jpg"
	}
	return relay.BuildURL(n.RelayPath, target)
}

// Chapter builds a chapter summary.
func (n Normalizer) Chapter(ch mangadex.Chapter) models.Chapter {
	a := ch.Attributes
	out := models.Chapter{
		ChapterID:       ch.ID,
		ChapterNumber:   a.Chapter,
		Volume:          a.Volume,
		ScanlationGroup: UnknownGroup,
		Pages:           a.Pages,
		PublishedAt:     a.PublishAt,
	}
	if a.Title != nil {
		out.Title = *a.Title
	}
	if rel, ok := FindRelationship(ch.Relationships, mangadex.RelScanlationGroup); ok {
		if g, ok := rel.Group(); ok {
			out.ScanlationGroup = g.Name
		}
	}
	return out
}

// PageURLs returns relay URLs for the page images of a chapter.
func (n Normalizer) PageURLs(server *mangadex.AtHomeServer, dataSaver bool) []string {
	files, dir := server.Chapter.Data, "data"
	if dataSaver {
		files, dir = server.Chapter.DataSaver, "data-saver"
	}
	base := strings.TrimRight(server.BaseURL, "/")
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, relay.BuildURL(n.RelayPath, base+"/"+dir+"/"+server.Chapter.Hash+"/"+f))
	}
	return out
}
