package models

type (
	Config struct {
		// Paths
		SavePath       string `toml:"SavePath"`
		DatabasePath   string `toml:"DatabasePath"`
		BleveIndexPath string `toml:"BleveIndexPath"`

		// HTTP API
		ListenAddr string `toml:"ListenAddr"`

		// Downloader Behavior
		FallbackEndpoints  []string `toml:"FallbackEndpoints"`
		MetadataTimeoutSec int      `toml:"MetadataTimeoutSec"`
		ContentTimeoutSec  int      `toml:"ContentTimeoutSec"`
		PrimaryTimeoutSec  int      `toml:"PrimaryTimeoutSec"`
		DownloadDelayMs    int      `toml:"DownloadDelayMs"`

		// LLM extraction (OpenAI-compatible chat completions endpoint)
		LlmApiUrl string `toml:"LlmApiUrl"`
		LlmApiKey string `toml:"LlmApiKey"`
		LlmModel  string `toml:"LlmModel"`

		// Other
		LogApiRequests bool `toml:"LogApiRequests"`
	}

	// Song is a single requested track, annotated in place as it moves
	// through the pipeline: search fills YoutubeURL, download fills
	// DownloadStatus and FilePath.
	Song struct {
		Title          string `json:"title"`
		Artist         string `json:"artist"`
		URL            string `json:"youtube_url,omitempty"`
		DownloadStatus string `json:"download_status,omitempty"`
		FilePath       string `json:"file_path,omitempty"`
	}

	// Api Requests and Responses
	ExtractRequest struct {
		Query string `json:"query"`
	}

	ExtractResponse struct {
		Songs      []Song `json:"songs"`
		Message    string `json:"message"`
		Intent     string `json:"intent"`
		Suggestion string `json:"suggestion,omitempty"`
	}

	SearchResponse struct {
		Songs   []Song `json:"songs"`
		Message string `json:"message"`
	}

	DownloadRequest struct {
		Songs []Song `json:"songs"`
	}

	// DownloadResult reports the outcome for one requested song.
	// FilePath is set if and only if Success is true.
	DownloadResult struct {
		Title       string `json:"title"`
		Artist      string `json:"artist"`
		Success     bool   `json:"success"`
		FilePath    string `json:"file_path,omitempty"`
		DurationSec int    `json:"duration_seconds,omitempty"`
		Error       string `json:"error,omitempty"`
	}

	DownloadResponse struct {
		Songs        []Song `json:"songs"`
		SuccessCount int    `json:"success_count"`
		FailedCount  int    `json:"failed_count"`
		Message      string `json:"message"`
	}

	// FileInfo describes one file in the downloads directory.
	FileInfo struct {
		Filename string `json:"filename"`
		Size     int64  `json:"size"`
		Modified string `json:"modified"`
	}

	ListDownloadsResponse struct {
		Files []FileInfo `json:"files"`
	}

	// DatabaseEntry is the persisted record of one completed (or failed)
	// download, keyed by a hash of the video reference.
	DatabaseEntry struct {
		ID           string `json:"id"`
		Title        string `json:"title"`
		Artist       string `json:"artist"`
		VideoRef     string `json:"videoRef"`
		Filename     string `json:"filename"`
		FilePath     string `json:"filePath"`
		Extension    string `json:"extension"`
		SizeBytes    int64  `json:"sizeBytes"`
		DurationSec  int    `json:"durationSec,omitempty"`
		ContentHash  string `json:"contentHash,omitempty"`
		Source       string `json:"source"`
		Timestamp    int64  `json:"timestamp"`
		Status       string `json:"status"`
		ErrorDetails string `json:"errorDetails,omitempty"`
	}
)

// Database Status Constants
const (
	StatusDownloaded = "Downloaded"
	StatusError      = "Error"
)

// Per-song download status values reported by the API.
const (
	SongStatusPending   = "pending"
	SongStatusReady     = "ready"
	SongStatusNotFound  = "not_found"
	SongStatusCompleted = "completed"
	SongStatusFailed    = "failed"
)

// Download source constants recorded in DatabaseEntry.Source.
const (
	SourcePrimary  = "primary"
	SourceFallback = "fallback"
)
