package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-playlist-download/index"
	"go-playlist-download/internal/database"
	"go-playlist-download/internal/helpers"
	"go-playlist-download/internal/models"
)

// dbCmd represents the base command for database operations
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the download database",
	Long:  `Perform operations like viewing, verifying, or searching entries in the download database.`,
}

// dbViewCmd represents the command to view database entries
var dbViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View entries stored in the database",
	Long:  `Lists the downloads that have been recorded in the database, newest first.`,
	Run:   runDbView,
}

// dbVerifyCmd represents the command to verify database entries against the filesystem
var dbVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify database entries against the filesystem",
	Long: `Checks that the files listed in the database exist at their recorded paths
and, optionally, that their content hashes still match. Overwritten or
deleted files show up here even though the downloads directory looks fine.`,
	Run: runDbVerify,
}

// dbSearchCmd represents the command to search the library index
var dbSearchCmd = &cobra.Command{
	Use:   "search [QUERY]",
	Short: "Search the library index",
	Long: `Runs a full-text query against the library index and prints matching
tracks. Field queries work too, e.g. '+artist:coldplay'.`,
	Args: cobra.ExactArgs(1),
	Run:  runDbSearch,
}

// dbReindexCmd represents the command to rebuild the library index
var dbReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the library index from the database",
	Long: `Deletes the library index and rebuilds it from the download database.
Useful after an index corruption or an upgrade that changed the mapping.`,
	Run: runDbReindex,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbViewCmd)
	dbCmd.AddCommand(dbVerifyCmd)
	dbCmd.AddCommand(dbSearchCmd)
	dbCmd.AddCommand(dbReindexCmd)

	dbVerifyCmd.Flags().Bool("check-hash", true, "Verify content hashes of existing files")
}

func openDownloadDB() *database.DB {
	if globalConfig.DatabasePath == "" {
		log.Fatal("Database path is not set in the configuration. Please check config file or path.")
	}
	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		log.WithError(err).Fatalf("Failed to open database at %s", globalConfig.DatabasePath)
	}
	return db
}

func runDbView(cmd *cobra.Command, args []string) {
	log.Info("Viewing database entries...")

	db := openDownloadDB()
	defer db.Close()

	entries, err := db.ListDownloads()
	if err != nil {
		log.WithError(err).Fatal("Failed to list download entries")
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Artist\tTitle\tFilename\tSize\tSource\tStatus\tDownloaded\tID")
	fmt.Fprintln(tw, "------\t-----\t--------\t----\t------\t------\t----------\t--")

	for _, entry := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			entry.Artist,
			entry.Title,
			entry.Filename,
			helpers.BytesToSize(uint64(entry.SizeBytes)),
			entry.Source,
			entry.Status,
			time.Unix(entry.Timestamp, 0).Format("2006-01-02 15:04"),
			entry.ID,
		)
	}

	if err := tw.Flush(); err != nil {
		log.WithError(err).Error("Error flushing table writer for db view")
	}
	log.Infof("Displayed %d entries.", len(entries))
}

func runDbVerify(cmd *cobra.Command, args []string) {
	log.Info("Verifying database entries against filesystem...")
	checkHashFlag, _ := cmd.Flags().GetBool("check-hash")

	db := openDownloadDB()
	defer db.Close()

	entries, err := db.ListDownloads()
	if err != nil {
		log.WithError(err).Fatal("Failed to list download entries")
	}

	var foundOk, hashMismatch, missing, skipped int
	for _, entry := range entries {
		if entry.Status != models.StatusDownloaded || entry.FilePath == "" {
			skipped++
			continue
		}
		_, statErr := os.Stat(entry.FilePath)
		if os.IsNotExist(statErr) {
			missing++
			log.WithField("path", entry.FilePath).Error("[MISSING] File not found.")
			continue
		}
		if statErr != nil {
			log.WithError(statErr).Errorf("[ERROR] Could not check file status for %s", entry.FilePath)
			continue
		}

		if checkHashFlag && entry.ContentHash != "" {
			hash, hashErr := helpers.HashFileBlake3(entry.FilePath)
			if hashErr != nil {
				log.WithError(hashErr).Errorf("[ERROR] Could not hash %s", entry.FilePath)
				continue
			}
			if hash != entry.ContentHash {
				hashMismatch++
				// A mismatch here usually means a later download with the
				// same "Artist - Title" stem overwrote this file.
				log.WithField("path", entry.FilePath).Warn("[MISMATCH] File exists but content hash differs from the recorded download.")
				continue
			}
			foundOk++
			log.WithField("path", entry.FilePath).Info("[OK] File exists and hash matches.")
		} else {
			foundOk++
			log.WithField("path", entry.FilePath).Info("[FOUND] File exists (hash check skipped).")
		}
	}

	log.Infof("Verification Summary: Total=%d, OK=%d, Missing=%d, Mismatch=%d, Skipped=%d",
		len(entries), foundOk, missing, hashMismatch, skipped)
	if missing > 0 || hashMismatch > 0 {
		os.Exit(1)
	}
}

func runDbReindex(cmd *cobra.Command, args []string) {
	db := openDownloadDB()
	defer db.Close()

	entries, err := db.ListDownloads()
	if err != nil {
		log.WithError(err).Fatal("Failed to list download entries")
	}

	if err := index.DeleteIndex(globalConfig.BleveIndexPath); err != nil {
		log.WithError(err).Fatalf("Failed to delete library index at %s", globalConfig.BleveIndexPath)
	}
	idx, err := index.OpenOrCreateIndex(globalConfig.BleveIndexPath)
	if err != nil {
		log.WithError(err).Fatalf("Failed to recreate library index at %s", globalConfig.BleveIndexPath)
	}
	defer idx.Close()

	var indexed, failed int
	for _, entry := range entries {
		if entry.Status != models.StatusDownloaded || entry.FilePath == "" {
			continue
		}
		track := index.Track{
			ID:          entry.ID,
			Title:       entry.Title,
			Artist:      entry.Artist,
			Filename:    entry.Filename,
			FilePath:    entry.FilePath,
			Extension:   entry.Extension,
			VideoRef:    entry.VideoRef,
			Source:      entry.Source,
			DurationSec: entry.DurationSec,
			SizeBytes:   entry.SizeBytes,
			Timestamp:   entry.Timestamp,
		}
		if err := index.IndexTrack(idx, track); err != nil {
			failed++
			log.WithError(err).Errorf("Failed to index entry %s", entry.ID)
			continue
		}
		indexed++
	}

	log.Infof("Reindex Summary: Indexed=%d, Failed=%d", indexed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func runDbSearch(cmd *cobra.Command, args []string) {
	query := args[0]
	log.Infof("Searching library index for: '%s'", query)

	idx := openLibraryIndex(globalConfig.BleveIndexPath)
	if idx == nil {
		log.Fatal("Library index is not available.")
	}
	defer idx.Close()

	results, err := index.SearchIndex(idx, query)
	if err != nil {
		log.WithError(err).Fatalf("Search failed for query '%s'", query)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Artist\tTitle\tFilename\tID")
	fmt.Fprintln(tw, "------\t-----\t--------\t--")

	for _, hit := range results.Hits {
		artist, _ := hit.Fields["artist"].(string)
		title, _ := hit.Fields["title"].(string)
		filename, _ := hit.Fields["filename"].(string)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", artist, title, filename, hit.ID)
	}

	if err := tw.Flush(); err != nil {
		log.WithError(err).Error("Error flushing table writer for db search")
	}
	log.Infof("Found %d matching entries for query '%s'.", results.Total, query)
}
