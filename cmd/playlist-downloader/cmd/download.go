package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-playlist-download/internal/database"
	"go-playlist-download/internal/downloader"
	"go-playlist-download/internal/fetcher"
	"go-playlist-download/internal/helpers"
	"go-playlist-download/internal/models"
	"go-playlist-download/internal/search"
)

var downloadCmd = &cobra.Command{
	Use:   "download [\"title|artist|url\" ...]",
	Short: "Download songs from the command line",
	Long: `Downloads one or more songs. Each item is "title|artist|url"; the url part
is optional when --resolve is set, in which case it is looked up first.
Items can also be read from a file, one per line, with --file.`,
	Run: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().StringP("file", "f", "", "Read items from a file, one per line")
	downloadCmd.Flags().Bool("force", false, "Re-download items that are already recorded")
	downloadCmd.Flags().Bool("resolve", false, "Resolve missing urls via video search before downloading")
	if err := viper.BindPFlag("download.resolve", downloadCmd.Flags().Lookup("resolve")); err != nil {
		log.WithError(err).Error("Failed to bind resolve flag")
	}
}

// parseSongItem parses one "title|artist|url" item. The url part is optional.
func parseSongItem(item string) (models.Song, error) {
	parts := strings.Split(item, "|")
	if len(parts) < 2 || len(parts) > 3 {
		return models.Song{}, fmt.Errorf("malformed item %q, want \"title|artist\" or \"title|artist|url\"", item)
	}
	song := models.Song{
		Title:  strings.TrimSpace(parts[0]),
		Artist: strings.TrimSpace(parts[1]),
	}
	if len(parts) == 3 {
		song.URL = strings.TrimSpace(parts[2])
	}
	if song.Title == "" {
		return models.Song{}, fmt.Errorf("item %q has an empty title", item)
	}
	return song, nil
}

// readSongFile reads items from a file, skipping blank lines and #-comments.
func readSongFile(path string) ([]models.Song, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening item file %s: %w", path, err)
	}
	defer f.Close()

	var songs []models.Song
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		song, err := parseSongItem(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		songs = append(songs, song)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading item file %s: %w", path, err)
	}
	return songs, nil
}

func runDownload(cmd *cobra.Command, args []string) {
	cfg := globalConfig
	if cfg.SavePath == "" {
		log.Fatal("SavePath is not set in the configuration. Cannot download.")
	}

	itemFile, _ := cmd.Flags().GetString("file")
	force, _ := cmd.Flags().GetBool("force")
	resolve := viper.GetBool("download.resolve")

	var songs []models.Song
	if itemFile != "" {
		fileSongs, err := readSongFile(itemFile)
		if err != nil {
			log.WithError(err).Fatal("Failed to read item file")
		}
		songs = fileSongs
	}
	for _, arg := range args {
		song, err := parseSongItem(arg)
		if err != nil {
			log.WithError(err).Fatal("Failed to parse item")
		}
		songs = append(songs, song)
	}
	if len(songs) == 0 {
		log.Fatal("No items to download. Pass items as arguments or via --file.")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Resolve missing urls up front so the batch itself stays sequential.
	if resolve {
		searcher := search.NewClient(globalHttpTransport)
		for i := range songs {
			if songs[i].URL != "" {
				continue
			}
			url, err := searcher.FindVideo(ctx, songs[i])
			if err != nil {
				log.WithError(err).Warnf("Could not resolve %q by %q, it will fail in the batch", songs[i].Title, songs[i].Artist)
				continue
			}
			log.Debugf("Resolved %q to %s", songs[i].Title, url)
			songs[i].URL = url
		}
	}

	var db *database.DB
	if cfg.DatabasePath != "" {
		var err error
		db, err = database.Open(cfg.DatabasePath)
		if err != nil {
			log.WithError(err).Warnf("Could not open database at %s, download recording disabled", cfg.DatabasePath)
			db = nil
		} else {
			defer db.Close()
		}
	}
	idx := openLibraryIndex(cfg.BleveIndexPath)
	if idx != nil {
		defer idx.Close()
	}

	primary := fetcher.NewPrimaryFetcher(cfg.SavePath, cfg.PrimaryTimeoutSec, globalHttpTransport)
	fallback := fetcher.NewFallbackFetcher(cfg.FallbackEndpoints, cfg.SavePath, cfg.MetadataTimeoutSec, cfg.ContentTimeoutSec, globalHttpTransport)
	recorder := downloader.NewLibraryRecorder(db, idx)
	orch := downloader.NewOrchestrator(primary, fallback, recorder, cfg.DownloadDelayMs)

	writer := uilive.New()
	writer.Start()
	defer writer.Stop()

	var succeeded, failed, skipped int
	for i, song := range songs {
		if !force && song.URL != "" && alreadyDownloaded(db, song.URL) {
			skipped++
			fmt.Fprintf(writer.Newline(), "[%d/%d] Skipped (already downloaded): %s - %s\n", i+1, len(songs), song.Artist, song.Title)
			continue
		}
		if i > 0 && cfg.DownloadDelayMs > 0 {
			time.Sleep(time.Duration(cfg.DownloadDelayMs) * time.Millisecond)
		}
		fmt.Fprintf(writer, "[%d/%d] Downloading %s - %s...\n", i+1, len(songs), song.Artist, song.Title)

		result := orch.DownloadOne(ctx, song)
		if result.Success {
			succeeded++
			fmt.Fprintf(writer.Newline(), "[%d/%d] Done: %s\n", i+1, len(songs), filepath.Base(result.FilePath))
		} else {
			failed++
			fmt.Fprintf(writer.Newline(), "[%d/%d] Failed: %s - %s (%s)\n", i+1, len(songs), song.Artist, song.Title, result.Error)
		}
	}

	log.Infof("Download complete. Succeeded=%d, Failed=%d, Skipped=%d", succeeded, failed, skipped)
	if failed > 0 {
		os.Exit(1)
	}
}

// alreadyDownloaded reports whether the database has a successful entry for
// videoRef whose file is still on disk.
func alreadyDownloaded(db *database.DB, videoRef string) bool {
	if db == nil {
		return false
	}
	id := helpers.HashStringBlake3(videoRef)[:16]
	if !db.HasDownload(id) {
		return false
	}
	entry, err := db.GetDownload(id)
	if err != nil || entry.Status != models.StatusDownloaded || entry.FilePath == "" {
		return false
	}
	_, statErr := os.Stat(entry.FilePath)
	return statErr == nil
}
