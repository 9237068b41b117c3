package main

import (
	"bytes"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const recentBody = `[{"id":"m1","title":"Frieren","description":"An elf mage.","authors":["Yamada"],
  "genres":["Fantasy","Drama"],"cover":"/relay-image?imageUrl=x","updatedAt":"2024-05-01"}]`

func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/entities/recent":
			_, _ = w.Write([]byte(recentBody))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"Manga not found"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRecentCommandPrintsJSON(t *testing.T) {
	srv := newAPI(t)
	out, err := execute(t, "--api", srv.URL, "recent")
	require.NoError(t, err)
	require.Contains(t, out, `"title": "Frieren"`)
}

func TestMangaCommandReportsAPIError(t *testing.T) {
	srv := newAPI(t)
	_, err := execute(t, "--api", srv.URL, "manga", "missing")
	require.ErrorContains(t, err, "Manga not found")
}

func TestExportCSV(t *testing.T) {
	srv := newAPI(t)
	path := filepath.Join(t.TempDir(), "out", "recent.csv")

	out, err := execute(t, "--api", srv.URL, "export", "--format", "csv", "-o", path)
	require.NoError(t, err)
	require.Contains(t, out, "exported 1 manga")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "id", rows[0][0])
	require.Equal(t, []string{"m1", "Frieren", "Yamada", "", "Fantasy,Drama", "2024-05-01", "/relay-image?imageUrl=x", "An elf mage."}, rows[1])
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	srv := newAPI(t)
	_, err := execute(t, "--api", srv.URL, "export", "--format", "xml", "-o", filepath.Join(t.TempDir(), "x"))
	require.ErrorContains(t, err, "unknown format")
}
