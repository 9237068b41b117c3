package mangadex

import (
	"net/url"
	"strconv"
)

// Order is a single order[field]=direction clause.
type Order struct {
	Field     string
	Direction string
}

func (o Order) apply(q url.Values) {
	if o.Field == "" {
		return
	}
	dir := o.Direction
	if dir == "" {
		dir = "desc"
	}
	q.Set("order["+o.Field+"]", dir)
}

// MangaQuery selects records from /manga.
type MangaQuery struct {
	IDs                          []string
	Title                        string
	Limit                        int
	Offset                       int
	Order                        Order
	Includes                     []string
	CreatedAtSince               string
	AvailableTranslatedLanguages []string
	ContentRatings               []string
}

func (m MangaQuery) values() url.Values {
	q := url.Values{}
	for _, id := range m.IDs {
		q.Add("ids[]", id)
	}
	if m.Title != "" {
		q.Set("title", m.Title)
	}
	setPaging(q, m.Limit, m.Offset)
	m.Order.apply(q)
	for _, inc := range m.Includes {
		q.Add("includes[]", inc)
	}
	if m.CreatedAtSince != "" {
		q.Set("createdAtSince", m.CreatedAtSince)
	}
	for _, l := range m.AvailableTranslatedLanguages {
		q.Add("availableTranslatedLanguage[]", l)
	}
	for _, r := range m.ContentRatings {
		q.Add("contentRating[]", r)
	}
	return q
}

// ChapterQuery selects records from /chapter or a manga feed.
type ChapterQuery struct {
	Limit               int
	Offset              int
	Order               Order
	TranslatedLanguages []string
	Includes            []string
}

func (c ChapterQuery) values() url.Values {
	q := url.Values{}
	setPaging(q, c.Limit, c.Offset)
	c.Order.apply(q)
	for _, l := range c.TranslatedLanguages {
		q.Add("translatedLanguage[]", l)
	}
	for _, inc := range c.Includes {
		q.Add("includes[]", inc)
	}
	return q
}

func setPaging(q url.Values, limit, offset int) {
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
}
