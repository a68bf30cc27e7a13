package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-playlist-download/index"
	"go-playlist-download/internal/database"
	"go-playlist-download/internal/downloader"
	"go-playlist-download/internal/extract"
	"go-playlist-download/internal/fetcher"
	"go-playlist-download/internal/search"
	"go-playlist-download/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Starts the HTTP API: intent extraction, video search, batch downloads
and the file-serving gateway over the downloads directory.`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "Listen address (overrides config, e.g. :8000)")
	if err := viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen")); err != nil {
		log.WithError(err).Error("Failed to bind listen flag")
	}
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := globalConfig
	if listen := viper.GetString("server.listen"); listen != "" {
		cfg.ListenAddr = listen
	}
	if cfg.SavePath == "" {
		log.Fatal("SavePath is not set in the configuration. Cannot serve downloads.")
	}

	// Download index and library index are best-effort: the API stays up
	// without them, with recording and library search disabled.
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

	var idx = openLibraryIndex(cfg.BleveIndexPath)
	if idx != nil {
		defer idx.Close()
	}

	primary := fetcher.NewPrimaryFetcher(cfg.SavePath, cfg.PrimaryTimeoutSec, globalHttpTransport)
	fallback := fetcher.NewFallbackFetcher(cfg.FallbackEndpoints, cfg.SavePath, cfg.MetadataTimeoutSec, cfg.ContentTimeoutSec, globalHttpTransport)
	recorder := downloader.NewLibraryRecorder(db, idx)
	orch := downloader.NewOrchestrator(primary, fallback, recorder, cfg.DownloadDelayMs)

	extractor := extract.NewClient(cfg, globalHttpTransport)
	searcher := search.NewClient(globalHttpTransport)

	srv := server.New(cfg, extractor, searcher, orch, idx)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.WithError(err).Fatal("HTTP API terminated with error")
	}
	log.Info("HTTP API stopped.")
}

// openLibraryIndex opens (or creates) the bleve library index, returning nil
// when it cannot be opened.
func openLibraryIndex(path string) bleve.Index {
	idx, err := index.OpenOrCreateIndex(path)
	if err != nil {
		log.WithError(err).Warnf("Could not open library index at %s, library search disabled", path)
		return nil
	}
	return idx
}
