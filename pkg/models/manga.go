package models

// Manga is the flat, presentation-ready form of an upstream manga record.
// Cover is a relay URL, or null when the upstream has no cover art.
type Manga struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`       // resolved from the localized title map
	Description   string   `json:"description"` // resolved from the localized description map
	Authors       []string `json:"authors"`
	Genres        []string `json:"genres"`
	Cover         *string  `json:"cover"`
	UpdatedAt     string   `json:"updatedAt,omitempty"` // upstream timestamp, passed through verbatim
	Status        string   `json:"status,omitempty"`    // "ongoing", "completed", etc.
	ContentRating string   `json:"contentRating,omitempty"`
	Year          *int     `json:"year,omitempty"`
}

// HasCover reports whether the entry has a cover reference.
func (m Manga) HasCover() bool {
	return m.Cover != nil && *m.Cover != ""
}

// Chapter is a single entry of a manga's chapter feed.
type Chapter struct {
	ChapterID       string  `json:"chapterId"`
	ChapterNumber   *string `json:"chapterNumber"` // textual, null for oneshots
	Volume          *string `json:"volume,omitempty"`
	Title           string  `json:"title"`
	ScanlationGroup string  `json:"scanlationGroup"`
	Pages           int     `json:"pages"`
	PublishedAt     string  `json:"publishedAt"`
}

// Statistics holds the community counters of a manga. Fields the upstream
// omits are left out.
type Statistics struct {
	MeanRating     *float64 `json:"meanRating,omitempty"`
	BayesianRating *float64 `json:"bayesianRating,omitempty"`
	Follows        *int     `json:"follows,omitempty"`
}

// Pagination echoes the requested window. Total is only set when the
// upstream reported one.
type Pagination struct {
	CurrentOffset int  `json:"currentOffset"`
	Limit         int  `json:"limit"`
	Total         *int `json:"total,omitempty"`
}

// SearchPage is one page of title search results.
type SearchPage struct {
	Mangas     []Manga    `json:"mangas"`
	Pagination Pagination `json:"pagination"`
}

// ChapterPages lists relay URLs for a chapter's page images, in reading order.
type ChapterPages struct {
	ChapterID string   `json:"chapterId"`
	Images    []string `json:"images"`
}
