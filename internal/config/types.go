package config

import (
	"bytes"
	"encoding/json"
)

// Config is the on-disk configuration. Secrets may be left empty in the file
// and supplied through the environment (see ApplyEnv).
type Config struct {
	Logging   LoggingConfig    `json:"logging"`
	Telegram  TelegramConfig   `json:"telegram"`
	Notify    NotifyConfig     `json:"notify"`
	Scheduler SchedulerConfig  `json:"scheduler"`
	Storage   StorageConfig    `json:"storage"`
	Redis     *RedisConfig     `json:"redis,omitempty"`
	HTTP      HTTPConfig       `json:"http"`
	Providers []ProviderConfig `json:"providers"`

	// ProviderTimeout bounds each provider fetch (Go duration, default "60s").
	ProviderTimeout string `json:"provider_timeout,omitempty"`
	// ShutdownTimeout bounds graceful shutdown (default "30s").
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
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

// LoggingTelegram forwards warnings to an operations chat. ChatID 0 reuses
// telegram.chat_id.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id,omitempty"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type TelegramConfig struct {
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	// APIURL overrides https://api.telegram.org (local Bot API server).
	APIURL     string  `json:"api_url,omitempty"`
	Timeout    string  `json:"timeout,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	// DryRun logs messages instead of sending them; token and chat id become optional.
	DryRun bool `json:"dry_run,omitempty"`
}

// NotifyConfig holds the notifier knobs; all of them are hot-reloadable.
type NotifyConfig struct {
	MaxMessageSize int `json:"max_message_size,omitempty"` // default 4096
	// Policy is "cycle" (new this cycle) or "activated" (newly active in storage).
	Policy         string `json:"policy,omitempty"`
	Header         bool   `json:"header,omitempty"`
	DisablePreview bool   `json:"disable_preview,omitempty"`
}

type SchedulerConfig struct {
	Enabled       bool   `json:"enabled"`
	Schedule      string `json:"schedule,omitempty"` // default "5m"
	Timezone      string `json:"timezone,omitempty"`
	RunOnStart    bool   `json:"run_on_start,omitempty"`
	StartupSpread bool   `json:"startup_spread,omitempty"`
	RunTimeout    string `json:"run_timeout,omitempty"`
}

// StorageConfig selects the offer store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./dealwatch.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`          // postgres; prefer DEALWATCH_STORAGE_DSN
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
	MaxConns    int32  `json:"max_conns,omitempty"`    // postgres
}

// RedisConfig enables the cross-process cycle lock.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Key      string `json:"key,omitempty"`
	LockTTL  string `json:"lock_ttl,omitempty"` // default "10m"
}

type HTTPConfig struct {
	Enabled        bool   `json:"enabled"`
	Addr           string `json:"addr,omitempty"` // default "127.0.0.1:8080"
	RequestTimeout string `json:"request_timeout,omitempty"`
}

type ProviderConfig struct {
	Name     string          `json:"name,omitempty"`
	Kind     string          `json:"kind"`
	Enabled  bool            `json:"enabled"`
	URL      string          `json:"url,omitempty"`
	Timeout  string          `json:"timeout,omitempty"`
	Origin   string          `json:"origin,omitempty"`
	MaxPages int             `json:"max_pages,omitempty"`
	LinkBase string          `json:"link_base,omitempty"`
	Adults   int             `json:"adults,omitempty"`
	Body     json.RawMessage `json:"body,omitempty"`
}

// UnmarshalJSON rejects unknown keys inside a provider block so a typo is
// caught on reload instead of silently disabling an override.
func (p *ProviderConfig) UnmarshalJSON(b []byte) error {
	type plain ProviderConfig
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var t plain
	if err := dec.Decode(&t); err != nil {
		return err
	}
	*p = ProviderConfig(t)
	return nil
}

// DisplayName is the name used in logs and summaries.
func (p ProviderConfig) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Kind
}
