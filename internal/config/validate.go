package config

import (
	"strings"

	"github.com/cockroachdb/errors"

	"dealwatch/internal/notify"
	"dealwatch/internal/provider"
	"dealwatch/internal/storage"
	"dealwatch/internal/task/scheduler"
	logx "dealwatch/pkg/logx"
)

// Validate checks everything the process needs before it can start or before
// a reloaded config is accepted. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, errors.Newf(format, args...)) }

	if !c.Telegram.DryRun {
		if strings.TrimSpace(c.Telegram.Token) == "" {
			add("telegram.token is required (or set %s_TELEGRAM_TOKEN)", EnvPrefix)
		}
		if c.Telegram.ChatID == 0 {
			add("telegram.chat_id is required (or set %s_TELEGRAM_CHAT_ID)", EnvPrefix)
		}
	}
	if c.Telegram.RatePerSec < 0 {
		add("telegram.rate_per_sec must be >= 0")
	}

	if lvl := strings.TrimSpace(c.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		add("logging.level: unknown level %q", lvl)
	}
	if lvl := strings.TrimSpace(c.Logging.Telegram.MinLevel); lvl != "" && !logx.ValidLevel(lvl) {
		add("logging.telegram.min_level: unknown level %q", lvl)
	}

	if n := c.Notify.MaxMessageSize; n < 0 || n > notify.MaxMessageSize {
		add("notify.max_message_size must be in 1..%d", notify.MaxMessageSize)
	}
	if !notify.ValidPolicy(c.Notify.Policy) {
		add("notify.policy: unknown policy %q", c.Notify.Policy)
	}

	if _, err := scheduler.ParseSchedule(c.ScheduleSpec()); err != nil {
		errs = append(errs, errors.Wrap(err, "scheduler.schedule"))
	}
	if err := scheduler.ValidTimezone(c.Scheduler.Timezone); err != nil {
		errs = append(errs, errors.Wrap(err, "scheduler.timezone"))
	}

	if !storage.KnownDriver(c.Storage.Driver) {
		add("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "postgres", "postgresql", "pg":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			add("storage.dsn is required for postgres (or set %s_STORAGE_DSN)", EnvPrefix)
		}
	}

	if c.Redis != nil && strings.TrimSpace(c.Redis.Addr) == "" {
		add("redis.addr is required when redis is configured")
	}

	enabled := 0
	names := map[string]bool{}
	for i, p := range c.Providers {
		if !provider.Known(p.Kind) {
			add("providers[%d].kind: unknown provider %q", i, p.Kind)
		}
		name := p.DisplayName()
		if names[name] {
			add("providers[%d]: duplicate provider name %q", i, name)
		}
		names[name] = true
		if p.Adults < 0 {
			add("providers[%d].adults must be >= 0", i)
		}
		if p.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		add("at least one provider must be enabled")
	}

	durations := map[string]string{
		"provider_timeout":      c.ProviderTimeout,
		"shutdown_timeout":      c.ShutdownTimeout,
		"telegram.timeout":      c.Telegram.Timeout,
		"scheduler.run_timeout": c.Scheduler.RunTimeout,
		"storage.busy_timeout":  c.Storage.BusyTimeout,
		"http.request_timeout":  c.HTTP.RequestTimeout,
	}
	if c.Redis != nil {
		durations["redis.lock_ttl"] = c.Redis.LockTTL
	}
	for _, p := range c.Providers {
		durations["providers["+p.DisplayName()+"].timeout"] = p.Timeout
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Redis != nil {
		ttl, errTTL := ParseDurationOrDefault("redis.lock_ttl", c.Redis.LockTTL, DefaultLockTTL)
		run, errRun := ParseDurationField("scheduler.run_timeout", c.Scheduler.RunTimeout)
		if errTTL == nil && errRun == nil && run > 0 && ttl <= run {
			add("redis.lock_ttl (%s) must exceed scheduler.run_timeout (%s)", ttl, run)
		}
	}

	return errors.Join(errs...)
}

// ScheduleSpec returns the configured schedule or the default.
func (c *Config) ScheduleSpec() string {
	if s := strings.TrimSpace(c.Scheduler.Schedule); s != "" {
		return s
	}
	return scheduler.DefaultSchedule
}
