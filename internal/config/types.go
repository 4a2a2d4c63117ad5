package config

// Config is the walrus configuration file. JSON or YAML; unknown keys are rejected.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Timers   TimersConfig   `json:"timers"`
	API      APIConfig      `json:"api"`
	Gist     GistConfig     `json:"gist"`
	NATS     NATSConfig     `json:"nats"`
}

type TelegramConfig struct {
	Token        string  `json:"token"` // WALRUS_TOKEN overrides
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	// LogChatID receives WARN+ log lines when logging.telegram is enabled.
	LogChatID int64 `json:"log_chat_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// RatePerSec caps outgoing messages. 0 means 20.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the timer/stats store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/walrus.db" }
//	"storage": { "driver": "postgres", "dsn": "postgres://walrus@localhost/walrus" }
type StorageConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path,omitempty"`
	DSN    string `json:"dsn,omitempty"` // WALRUS_POSTGRES_URI overrides

	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
	MaxConns    int32  `json:"max_conns,omitempty"`    // postgres
	OpTimeout   string `json:"op_timeout,omitempty"`
}

// TimersConfig tunes the dispatch loop. Durations are Go duration strings.
//
// Defaults: window "240h", rescan "1m" (capped at window), restart backoff "500ms".."30s".
type TimersConfig struct {
	Window            string `json:"window,omitempty"`
	Rescan            string `json:"rescan,omitempty"`
	RestartMinBackoff string `json:"restart_min_backoff,omitempty"`
	RestartMaxBackoff string `json:"restart_max_backoff,omitempty"`
}

// APIConfig controls the JSON stats server.
//
// Security note: debug exposes pprof; bind it to localhost.
type APIConfig struct {
	Enabled     bool     `json:"enabled"`
	Addr        string   `json:"addr,omitempty"` // default ":8080"
	CORSOrigins []string `json:"cors_origins,omitempty"`
	Debug       bool     `json:"debug,omitempty"`
	ReadTimeout string   `json:"read_timeout,omitempty"`
}

// GistConfig controls the periodic stats upload.
type GistConfig struct {
	Enabled  bool   `json:"enabled"`
	ID       string `json:"id,omitempty"`    // WALRUS_GIST_ID overrides
	Token    string `json:"token,omitempty"` // WALRUS_GIST_TOKEN overrides
	Schedule string `json:"schedule,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

// NATSConfig enables publishing fired timers to NATS.
type NATSConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url,omitempty"` // WALRUS_NATS_URL overrides
	Prefix  string `json:"prefix,omitempty"`
	Name    string `json:"name,omitempty"`
}

// Defaults returns a config that runs with a local sqlite file and console logs.
func Defaults() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Storage: StorageConfig{Driver: "sqlite", Path: "./data/walrus.db"},
		API:     APIConfig{Addr: ":8080"},
		Gist:    GistConfig{Schedule: "@every 30m", BaseURL: "https://api.github.com"},
		NATS:    NATSConfig{Prefix: "walrus.timers", Name: "walrus"},
	}
}
