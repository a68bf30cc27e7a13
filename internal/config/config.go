package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"go-playlist-download/internal/models"
)

// DefaultFallbackEndpoints are the conversion APIs tried, in order, when the
// primary extractor fails. The video id is appended to each.
var DefaultFallbackEndpoints = []string{
	"https://api.vevioz.com/api/button/mp3/",
	"https://www.yt1s.com/api/ajaxSearch/mp3/",
}

// LoadConfig reads the configuration from the specified path (defaulting to
// "config.toml") and fills in defaults for anything left unset. Missing
// optional fields produce warnings, not errors, so commands that don't need
// them can still run.
func LoadConfig(configFilePath string) (models.Config, error) {
	if configFilePath == "" {
		configFilePath = "config.toml" // Default path
	}
	var cfg models.Config
	_, err := toml.DecodeFile(configFilePath, &cfg)
	if err != nil {
		return models.Config{}, fmt.Errorf("error loading config file %s: %w", configFilePath, err)
	}

	if cfg.SavePath == "" {
		log.Warn("Warning: SavePath is not set in config.toml")
	}
	if cfg.DatabasePath == "" {
		log.Warn("Warning: DatabasePath is not set in config.toml")
	}

	applyDefaults(&cfg)

	log.Infof("Configuration loaded from %s", configFilePath)
	return cfg, nil
}

// applyDefaults fills zero-valued fields with working defaults.
func applyDefaults(cfg *models.Config) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8000"
	}
	if len(cfg.FallbackEndpoints) == 0 {
		cfg.FallbackEndpoints = DefaultFallbackEndpoints
	}
	if cfg.MetadataTimeoutSec <= 0 {
		cfg.MetadataTimeoutSec = 15
	}
	if cfg.ContentTimeoutSec <= 0 {
		cfg.ContentTimeoutSec = 60
	}
	if cfg.PrimaryTimeoutSec <= 0 {
		cfg.PrimaryTimeoutSec = 300
	}
	if cfg.DownloadDelayMs < 0 {
		cfg.DownloadDelayMs = 0
	} else if cfg.DownloadDelayMs == 0 {
		cfg.DownloadDelayMs = 1000
	}
	if cfg.LlmModel == "" {
		cfg.LlmModel = "gpt-4o-mini"
	}
}
