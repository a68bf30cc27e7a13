package cmd

import (
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-playlist-download/internal/fetcher"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean temporary files from the downloads directory",
	Long: `Removes leftover .tmp files from the downloads directory. Interrupted
downloads leave these behind; finished files are never touched.`,
	Run: runClean,
}

// cleanNonAudioFlag controls removal of files without a known audio extension
var cleanNonAudioFlag bool

func init() {
	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().BoolVar(&cleanNonAudioFlag, "non-audio", false, "Also remove files without a known audio extension")
}

func runClean(cmd *cobra.Command, args []string) {
	savePath := globalConfig.SavePath
	if savePath == "" {
		log.Fatal("SavePath is not set in the configuration. Cannot determine directory to clean.")
	}
	if _, err := os.Stat(savePath); os.IsNotExist(err) {
		log.Fatalf("SavePath directory does not exist: %s", savePath)
	}

	log.Infof("Cleaning directory: %s", savePath)
	if cleanNonAudioFlag {
		log.Info("Removing .tmp files and non-audio files.")
	} else {
		log.Info("Removing .tmp files.")
	}

	var removedCount, failedCount int
	err := filepath.Walk(savePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.WithError(err).Warnf("Error accessing path %q during clean walk", path)
			return nil // Continue walking if possible
		}
		if info.IsDir() {
			return nil
		}

		name := info.Name()
		if name == "api.log" {
			return nil
		}
		remove := strings.HasSuffix(name, ".tmp")
		if !remove && cleanNonAudioFlag {
			remove = !fetcher.IsAudioFile(name)
		}
		if !remove {
			return nil
		}

		log.Debugf("Removing: %s", path)
		if removeErr := os.Remove(path); removeErr != nil {
			failedCount++
			log.WithError(removeErr).Errorf("Failed to remove file: %s", path)
		} else {
			removedCount++
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Fatalf("Error walking the path %q", savePath)
	}

	log.Infof("Clean Summary: Removed=%d, Failed=%d", removedCount, failedCount)
	if failedCount > 0 {
		os.Exit(1)
	}
}
