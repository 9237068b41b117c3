package mangadex

import (
	"bytes"
	stdjson "encoding/json"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Relationship types referenced by this service.
const (
	RelManga           = "manga"
	RelAuthor          = "author"
	RelArtist          = "artist"
	RelCoverArt        = "cover_art"
	RelScanlationGroup = "scanlation_group"
)

// LocaleValue is one entry of a localized string map.
type LocaleValue struct {
	Lang  string
	Value string
}

// LocalizedString is a locale -> text map that keeps the upstream key order.
// Upstream sends either an object or an empty array for "no values".
type LocalizedString []LocaleValue

// Get returns the value for lang.
func (l LocalizedString) Get(lang string) (string, bool) {
	for _, e := range l {
		if e.Lang == lang {
			return e.Value, true
		}
	}
	return "", false
}

func (l *LocalizedString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*l = nil
		return nil
	}
	if trimmed[0] == '[' {
		var arr []stdjson.RawMessage
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return fmt.Errorf("localized string: %w", err)
		}
		if len(arr) != 0 {
			return errors.New("localized string: non-empty array")
		}
		*l = nil
		return nil
	}

	// encoding/json's token stream is used here to keep object key order.
	dec := stdjson.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("localized string: %w", err)
	}
	if d, ok := tok.(stdjson.Delim); !ok || d != '{' {
		return fmt.Errorf("localized string: unexpected token %v", tok)
	}

	out := LocalizedString{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("localized string: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("localized string: unexpected key %v", keyTok)
		}
		var val *string
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("localized string %q: %w", key, err)
		}
		if val == nil {
			continue
		}
		out = append(out, LocaleValue{Lang: key, Value: *val})
	}
	*l = out
	return nil
}

// Relationship is a typed link from one record to another. Attributes are
// only present when the relationship was requested via includes[].
type Relationship struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Related    string          `json:"related,omitempty"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
}

// CoverArtAttributes are carried by cover_art relationships.
type CoverArtAttributes struct {
	FileName    string  `json:"fileName"`
	Volume      *string `json:"volume"`
	Description string  `json:"description"`
	Locale      string  `json:"locale"`
}

// PersonAttributes are carried by author and artist relationships.
type PersonAttributes struct {
	Name string `json:"name"`
}

// GroupAttributes are carried by scanlation_group relationships.
type GroupAttributes struct {
	Name string `json:"name"`
}

func (r Relationship) hasAttributes() bool {
	a := bytes.TrimSpace(r.Attributes)
	return len(a) > 0 && !bytes.Equal(a, []byte("null"))
}

// CoverArt decodes the attributes of a cover_art relationship.
func (r Relationship) CoverArt() (CoverArtAttributes, bool) {
	var a CoverArtAttributes
	if r.Type != RelCoverArt || !r.hasAttributes() || json.Unmarshal(r.Attributes, &a) != nil {
		return a, false
	}
	return a, a.FileName != ""
}

// Person decodes the attributes of an author or artist relationship.
func (r Relationship) Person() (PersonAttributes, bool) {
	var a PersonAttributes
	if (r.Type != RelAuthor && r.Type != RelArtist) || !r.hasAttributes() || json.Unmarshal(r.Attributes, &a) != nil {
		return a, false
	}
	return a, a.Name != ""
}

// Group decodes the attributes of a scanlation_group relationship.
func (r Relationship) Group() (GroupAttributes, bool) {
	var a GroupAttributes
	if r.Type != RelScanlationGroup || !r.hasAttributes() || json.Unmarshal(r.Attributes, &a) != nil {
		return a, false
	}
	return a, a.Name != ""
}

type Tag struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Name  LocalizedString `json:"name"`
		Group string          `json:"group"`
	} `json:"attributes"`
}

type MangaAttributes struct {
	Title            LocalizedString   `json:"title"`
	AltTitles        []LocalizedString `json:"altTitles"`
	Description      LocalizedString   `json:"description"`
	OriginalLanguage string            `json:"originalLanguage"`
	LastChapter      *string           `json:"lastChapter"`
	Status           string            `json:"status"`
	Year             *int              `json:"year"`
	ContentRating    string            `json:"contentRating"`
	Tags             []Tag             `json:"tags"`
	CreatedAt        string            `json:"createdAt"`
	UpdatedAt        string            `json:"updatedAt"`
}

type Manga struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Attributes    MangaAttributes `json:"attributes"`
	Relationships []Relationship  `json:"relationships"`
}

type ChapterAttributes struct {
	Volume             *string `json:"volume"`
	Chapter            *string `json:"chapter"`
	Title              *string `json:"title"`
	TranslatedLanguage string  `json:"translatedLanguage"`
	ExternalURL        *string `json:"externalUrl"`
	Pages              int     `json:"pages"`
	PublishAt          string  `json:"publishAt"`
	ReadableAt         string  `json:"readableAt"`
	CreatedAt          string  `json:"createdAt"`
	UpdatedAt          string  `json:"updatedAt"`
}

type Chapter struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	Attributes    ChapterAttributes `json:"attributes"`
	Relationships []Relationship    `json:"relationships"`
}

// MangaList is the collection envelope of /manga.
type MangaList struct {
	Result string  `json:"result"`
	Data   []Manga `json:"data"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
	Total  *int    `json:"total"`
}

// MangaEntity is the single-record envelope of /manga/{id}.
type MangaEntity struct {
	Result string `json:"result"`
	Data   *Manga `json:"data"`
}

// ChapterList is the collection envelope of /chapter and /manga/{id}/feed.
type ChapterList struct {
	Result string    `json:"result"`
	Data   []Chapter `json:"data"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
	Total  *int      `json:"total"`
}

type Rating struct {
	Average  *float64 `json:"average"`
	Bayesian *float64 `json:"bayesian"`
}

type MangaStatistics struct {
	Rating  *Rating `json:"rating"`
	Follows *int    `json:"follows"`
}

// StatisticsResponse is keyed by manga id.
type StatisticsResponse struct {
	Result     string                     `json:"result"`
	Statistics map[string]MangaStatistics `json:"statistics"`
}

type AtHomeChapter struct {
	Hash      string   `json:"hash"`
	Data      []string `json:"data"`
	DataSaver []string `json:"dataSaver"`
}

// AtHomeServer describes where the page images of a chapter are served from.
type AtHomeServer struct {
	Result  string         `json:"result"`
	BaseURL string         `json:"baseUrl"`
	Chapter *AtHomeChapter `json:"chapter"`
}
