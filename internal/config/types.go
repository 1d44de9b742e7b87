package config

// Config is herald's on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram TelegramConfig    `json:"telegram"`
	Logging  LoggingConfig     `json:"logging"`
	Detector DetectorConfig    `json:"detector,omitempty"`
	Content  ContentConfig     `json:"content,omitempty"`
	Delivery DeliveryConfig    `json:"delivery,omitempty"`
	Sources  map[string]string `json:"sources,omitempty"` // fetcher name -> cron spec
	Storage  *StorageConfig    `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// AnnounceChat is the target chat id (numeric string, may be negative
	// for groups/channels).
	AnnounceChat string `json:"announce_chat"`
	ThreadID     int    `json:"thread_id,omitempty"`
	RatePerSec   int    `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string           `json:"level"`
	Console bool             `json:"console"`
	File    FileLogConfig    `json:"file,omitempty"`
	Channel ChannelLogConfig `json:"channel,omitempty"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// ChannelLogConfig mirrors high-severity log lines into the announce chat.
type ChannelLogConfig struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"` // default: ERROR
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type DetectorConfig struct {
	// MaxEntries caps each seen cache; oldest entries evict first.
	MaxEntries int `json:"max_entries,omitempty"`
}

type ContentConfig struct {
	// MaxAge is the maximum content age for announcement eligibility
	// (default "6h"). Cleanup removes records older than twice this.
	MaxAge string `json:"max_age,omitempty"`
	// CleanupSchedule is a cron spec (default "@hourly").
	CleanupSchedule string `json:"cleanup_schedule,omitempty"`
}

// DeliveryConfig controls pacing and retries of the announcement queue.
//
// Defaults (when fields are omitted/zero):
//   - base_delay: "2s"
//   - burst_allowance: 5
//   - burst_window: "1m"
//   - max_retries: 3
//   - backoff_multiplier: 2.0
//   - max_backoff: "1m"
//   - rate_limit_buffer: "1s"
//   - shutdown_timeout: "30s"
type DeliveryConfig struct {
	BaseDelay         string  `json:"base_delay,omitempty"`
	BurstAllowance    int     `json:"burst_allowance,omitempty"`
	BurstWindow       string  `json:"burst_window,omitempty"`
	MaxRetries        int     `json:"max_retries,omitempty"`
	BackoffMultiplier float64 `json:"backoff_multiplier,omitempty"`
	MaxBackoff        string  `json:"max_backoff,omitempty"`
	RateLimitBuffer   string  `json:"rate_limit_buffer,omitempty"`
	ShutdownTimeout   string  `json:"shutdown_timeout,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./herald.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}
