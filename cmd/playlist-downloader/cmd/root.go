package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-playlist-download/internal/api"
	"go-playlist-download/internal/config"
	"go-playlist-download/internal/models"
)

// cfgFile holds the path to the config file specified by the user
var cfgFile string

// logApiFlag holds the value of the --log-api flag
var logApiFlag bool

// savePathFlag holds the value of the --save-path flag
var savePathFlag string

// downloadDelayFlag holds the value of the --download-delay flag
var downloadDelayFlag int

// logLevelFlag holds the value of the --log-level flag
var logLevelFlag string

// globalConfig holds the loaded configuration
var globalConfig models.Config

// globalHttpTransport holds the globally configured HTTP transport (base or logging-wrapped)
var globalHttpTransport http.RoundTripper

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "playlist-downloader",
	Short: "A conversational music downloader",
	Long: `Playlist Downloader turns natural-language requests into a local music
library: it extracts song entities, resolves them to videos, downloads the
audio and serves the files over HTTP.`,
	PersistentPreRunE: loadGlobalConfig, // Load config before any command runs
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	// Defer closing the API logging transport if it was initialized
	defer func() {
		if loggingTransport, ok := globalHttpTransport.(*api.LoggingTransport); ok && loggingTransport != nil {
			log.Debug("Closing API logging transport file.")
			if err := loggingTransport.Close(); err != nil {
				log.WithError(err).Error("Error closing API log file")
			}
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.toml", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&logApiFlag, "log-api", false, "Log outbound HTTP requests/responses to api.log (overrides config)")
	rootCmd.PersistentFlags().StringVar(&savePathFlag, "save-path", "", "Directory to save downloads (overrides config)")
	rootCmd.PersistentFlags().IntVar(&downloadDelayFlag, "download-delay", -1, "Delay between batch downloads in ms (overrides config, -1 uses config default)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "Log level (debug, info, warn, error)")
}

// loadGlobalConfig attempts to load the configuration and applies flag overrides.
// It also sets up the global HTTP transport based on logging settings.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	if level, err := log.ParseLevel(logLevelFlag); err != nil {
		log.Warnf("Invalid --log-level %q, keeping default.", logLevelFlag)
	} else {
		log.SetLevel(level)
	}

	var err error
	globalConfig, err = config.LoadConfig(cfgFile)
	if err != nil {
		// Warn but don't fail: commands check the fields they actually need
		// and report their own errors.
		log.WithError(err).Warnf("Failed to load configuration from %s", cfgFile)
	}

	// Override LogApiRequests if flag was used
	if cmd.Flags().Changed("log-api") {
		globalConfig.LogApiRequests = logApiFlag
		log.Debugf("Overriding LogApiRequests based on --log-api flag: %t", logApiFlag)
	}

	// Override SavePath if flag was used
	if cmd.Flags().Changed("save-path") {
		if savePathFlag != "" {
			globalConfig.SavePath = savePathFlag
			log.Debugf("Overriding SavePath based on --save-path flag: %s", savePathFlag)
		} else {
			log.Warn("--save-path flag provided but value is empty, ignoring.")
		}
	}

	// Override DownloadDelayMs if flag was used and valid
	if cmd.Flags().Changed("download-delay") {
		if downloadDelayFlag >= 0 { // Allow 0 delay if specified
			globalConfig.DownloadDelayMs = downloadDelayFlag
			log.Debugf("Overriding DownloadDelayMs based on --download-delay flag: %d ms", downloadDelayFlag)
		} else {
			log.Warnf("--download-delay flag provided with invalid value %d, using config value: %d ms", downloadDelayFlag, globalConfig.DownloadDelayMs)
		}
	}

	// --- Setup Global HTTP Transport ---
	baseTransport := http.DefaultTransport
	globalHttpTransport = baseTransport
	if globalConfig.LogApiRequests {
		log.Debug("Outbound HTTP logging enabled, wrapping global transport.")
		logFilePath := "api.log"
		if globalConfig.SavePath != "" {
			if _, statErr := os.Stat(globalConfig.SavePath); statErr == nil {
				logFilePath = filepath.Join(globalConfig.SavePath, logFilePath)
			} else {
				log.Warnf("SavePath '%s' not found, saving api.log to current directory.", globalConfig.SavePath)
			}
		}
		log.Infof("Outbound HTTP logging to file: %s", logFilePath)

		loggingTransport, err := api.NewLoggingTransport(baseTransport, logFilePath)
		if err != nil {
			log.WithError(err).Error("Failed to initialize HTTP logging transport, logging disabled.")
		} else {
			globalHttpTransport = loggingTransport
		}
	}

	return nil
}
