package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"mangarelay/pkg/client"
	"mangarelay/pkg/models"
)

var (
	flagAPI     string
	flagTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "mangarelay",
	Short:        "Command line client for the mangarelay API",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagAPI, "api", envOr("MANGARELAY_API", client.DefaultBaseURL), "API base URL")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 30*time.Second, "request timeout")

	rootCmd.AddCommand(recentCmd, popularCmd, popularRecentCmd, browseCmd, searchCmd,
		mangaCmd, chaptersCmd, statsCmd, pagesCmd, exportCmd)

	for _, c := range []*cobra.Command{browseCmd, searchCmd} {
		c.Flags().Int("limit", 0, "page size (server default when 0)")
		c.Flags().Int("offset", 0, "offset")
	}
	pagesCmd.Flags().Bool("data-saver", false, "use compressed page images")
	exportCmd.Flags().String("source", "recent", "listing to export: recent, popular or popular-recent")
	exportCmd.Flags().String("format", "json", "output format: json or csv")
	exportCmd.Flags().StringP("out", "o", "", "output file (required)")
	_ = exportCmd.MarkFlagRequired("out")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newClient() *client.Client {
	return client.New(flagAPI, nil)
}

func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), flagTimeout)
}

// run wraps a fetch that produces a printable value.
func run[T any](fetch func(ctx context.Context, c *client.Client, cmd *cobra.Command, args []string) (T, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd)
		defer cancel()
		v, err := fetch(ctx, newClient(), cmd, args)
		if err != nil {
			return err
		}
		return printJSON(cmd, v)
	}
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Manga with recently published chapters",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, c *client.Client, _ *cobra.Command, _ []string) ([]models.Manga, error) {
		return c.Recent(ctx)
	}),
}

var popularCmd = &cobra.Command{
	Use:   "popular",
	Short: "Popular manga (latest updated listing)",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, c *client.Client, _ *cobra.Command, _ []string) ([]models.Manga, error) {
		return c.Popular(ctx)
	}),
}

var popularRecentCmd = &cobra.Command{
	Use:   "popular-recent",
	Short: "Most followed manga created in the last year",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, c *client.Client, _ *cobra.Command, _ []string) ([]models.Manga, error) {
		return c.PopularRecent(ctx)
	}),
}

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse manga translated into the configured languages",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, c *client.Client, cmd *cobra.Command, _ []string) (models.SearchPage, error) {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		return c.Browse(ctx, limit, offset)
	}),
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search manga by title",
	Args:  cobra.MinimumNArgs(1),
	RunE: run(func(ctx context.Context, c *client.Client, cmd *cobra.Command, args []string) (models.SearchPage, error) {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		return c.Search(ctx, strings.Join(args, " "), limit, offset)
	}),
}

var mangaCmd = &cobra.Command{
	Use:   "manga <id>",
	Short: "Show one manga",
	Args:  cobra.ExactArgs(1),
	RunE: run(func(ctx context.Context, c *client.Client, _ *cobra.Command, args []string) (models.Manga, error) {
		return c.Manga(ctx, args[0])
	}),
}

var chaptersCmd = &cobra.Command{
	Use:   "chapters <manga-id>",
	Short: "List translated chapters of a manga",
	Args:  cobra.ExactArgs(1),
	RunE: run(func(ctx context.Context, c *client.Client, _ *cobra.Command, args []string) ([]models.Chapter, error) {
		return c.Chapters(ctx, args[0])
	}),
}

var statsCmd = &cobra.Command{
	Use:   "stats <manga-id>",
	Short: "Show rating and follow counts of a manga",
	Args:  cobra.ExactArgs(1),
	RunE: run(func(ctx context.Context, c *client.Client, _ *cobra.Command, args []string) (models.Statistics, error) {
		return c.Statistics(ctx, args[0])
	}),
}

var pagesCmd = &cobra.Command{
	Use:   "pages <manga-id> <chapter-id>",
	Short: "List page image URLs of a chapter",
	Args:  cobra.ExactArgs(2),
	RunE: run(func(ctx context.Context, c *client.Client, cmd *cobra.Command, args []string) (models.ChapterPages, error) {
		dataSaver, _ := cmd.Flags().GetBool("data-saver")
		return c.ChapterPages(ctx, args[0], args[1], dataSaver)
	}),
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a listing to a JSON or CSV file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		source, _ := cmd.Flags().GetString("source")
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")

		ctx, cancel := withTimeout(cmd)
		defer cancel()

		c := newClient()
		var (
			items []models.Manga
			err   error
		)
		switch source {
		case "recent":
			items, err = c.Recent(ctx)
		case "popular":
			items, err = c.Popular(ctx)
		case "popular-recent":
			items, err = c.PopularRecent(ctx)
		default:
			return fmt.Errorf("unknown source %q", source)
		}
		if err != nil {
			return err
		}

		switch format {
		case "json":
			err = writeJSON(out, items)
		case "csv":
			err = writeCSV(out, items)
		default:
			return fmt.Errorf("unknown format %q", format)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %d manga to %s\n", len(items), out)
		return nil
	},
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}

func writeJSON(path string, items []models.Manga) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func writeCSV(path string, items []models.Manga) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{
		"id", "title", "authors", "status", "genres", "updated_at", "cover", "description",
	}); err != nil {
		return err
	}
	for _, item := range items {
		cover := ""
		if item.HasCover() {
			cover = *item.Cover
		}
		if err := writer.Write([]string{
			item.ID,
			item.Title,
			strings.Join(item.Authors, ","),
			item.Status,
			strings.Join(item.Genres, ","),
			item.UpdatedAt,
			cover,
			item.Description,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
