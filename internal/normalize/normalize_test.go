package normalize

import (
	"net/url"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"mangarelay/internal/mangadex"
)

func loc(pairs ...string) mangadex.LocalizedString {
	var l mangadex.LocalizedString
	for i := 0; i+1 < len(pairs); i += 2 {
		l = append(l, mangadex.LocaleValue{Lang: pairs[i], Value: pairs[i+1]})
	}
	return l
}

func TestResolveText(t *testing.T) {
	prefs := []string{"en", "en-us"}
	cases := []struct {
		name string
		in   mangadex.LocalizedString
		want string
	}{
		{"preferred first", loc("ja", "Ichi", "en", "One", "en-us", "Uno"), "One"},
		{"second preference", loc("ja", "Ichi", "en-us", "Uno"), "Uno"},
		{"insertion order", loc("ko", "Hana", "ja", "Ichi"), "Hana"},
		{"empty preferred skipped", loc("en", "", "ja", "Ichi"), "Ichi"},
		{"placeholder", nil, NoTitle},
		{"only blanks", loc("en", " "), NoTitle},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ResolveText(tc.in, prefs, NoTitle))
		})
	}
}

func TestResolveTextAlwaysReturnsMemberOrPlaceholder(t *testing.T) {
	inputs := []mangadex.LocalizedString{
		nil,
		loc("fr", "Un"),
		loc("en", "One", "fr", "Un"),
		loc("de", "", "fr", "Un"),
	}
	for _, in := range inputs {
		got := ResolveText(in, DefaultLocales, "PLACEHOLDER")
		ok := got == "PLACEHOLDER"
		for _, e := range in {
			ok = ok || e.Value == got
		}
		require.True(t, ok, "%v -> %q", in, got)
	}
}

func TestFindRelationship(t *testing.T) {
	rels := []mangadex.Relationship{
		{ID: "a1", Type: mangadex.RelAuthor},
		{ID: "c1", Type: mangadex.RelCoverArt},
		{ID: "a2", Type: mangadex.RelAuthor},
	}

	r, ok := FindRelationship(rels, mangadex.RelAuthor)
	require.True(t, ok)
	require.Equal(t, "a1", r.ID)

	_, ok = FindRelationship(rels, mangadex.RelManga)
	require.False(t, ok)
	_, ok = FindRelationship(nil, mangadex.RelManga)
	require.False(t, ok)

	all := FilterRelationships(rels, mangadex.RelAuthor)
	require.Len(t, all, 2)
	require.Equal(t, "a2", all[1].ID)
}

func TestMangaNormalization(t *testing.T) {
	year := 2019
	m := mangadex.Manga{
		ID: "m1",
		Attributes: mangadex.MangaAttributes{
			Title:         loc("ja-ro", "Kaguya-sama", "en", "Love is War"),
			Status:        "completed",
			Year:          &year,
			ContentRating: "suggestive",
			UpdatedAt:     "2024-01-02T03:04:05+00:00",
		},
		Relationships: []mangadex.Relationship{
			{ID: "a1", Type: mangadex.RelAuthor, Attributes: json.RawMessage(`{"name":"Aka Akasaka"}`)},
			{ID: "a2", Type: mangadex.RelAuthor},
			{ID: "c1", Type: mangadex.RelCoverArt, Attributes: json.RawMessage(`{"fileName":"cover.png"}`)},
		},
	}

	n := Normalizer{RelayPath: "/relay-image"}
	out := n.Manga(m, CoverOriginal)
	require.Equal(t, "Love is War", out.Title)
	require.Equal(t, NoDescription, out.Description)
	require.Equal(t, []string{"Aka Akasaka"}, out.Authors)
	require.Equal(t, []string{}, out.Genres)
	require.Equal(t, "completed", out.Status)
	require.Equal(t, 2019, *out.Year)
	require.Equal(t, "2024-01-02T03:04:05+00:00", out.UpdatedAt)

	u, err := url.Parse(*out.Cover)
	require.NoError(t, err)
	require.Equal(t, "/relay-image", u.Path)
	require.Equal(t, "https://uploads.mangadex.org/covers/m1/cover.png", u.Query().Get("imageUrl"))

	thumb := n.Manga(m, Cover256)
	u, _ = url.Parse(*thumb.Cover)
	require.Equal(t, "https://uploads.mangadex.org/covers/m1/cover.png.256.jpg", u.Query().Get("imageUrl"))
}

func TestMangaWithoutCover(t *testing.T) {
	m := mangadex.Manga{
		ID: "m2",
		Relationships: []mangadex.Relationship{
			// cover referenced but its attributes were not included
			{ID: "c1", Type: mangadex.RelCoverArt},
		},
	}
	out := Normalizer{}.Manga(m, CoverOriginal)
	require.Nil(t, out.Cover)
	require.False(t, out.HasCover())
	require.Equal(t, NoTitle, out.Title)
}

func TestCustomCoverBase(t *testing.T) {
	n := Normalizer{CoverBaseURL: "https://covers.example/", RelayPath: "/api/relay-image"}
	u, err := url.Parse(n.CoverURL("m", "f.jpg", Cover512))
	require.NoError(t, err)
	require.Equal(t, "/api/relay-image", u.Path)
	require.Equal(t, "https://covers.example/m/f.jpg.512.jpg", u.Query().Get("imageUrl"))
}
