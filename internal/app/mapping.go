package app

import (
	"net/http"
	"strings"
	"time"

	"dealwatch/internal/config"
	"dealwatch/internal/cycle"
	"dealwatch/internal/httpapi"
	"dealwatch/internal/notify"
	"dealwatch/internal/provider"
	"dealwatch/internal/storage"
	"dealwatch/internal/task/scheduler"
	kit "dealwatch/internal/transport"
	"dealwatch/internal/transport/telegram"
	logx "dealwatch/pkg/logx"
)

const (
	defaultProviderTimeout = 60 * time.Second
	defaultShutdownTimeout = 30 * time.Second
)

// The config package validates every duration before a config is accepted,
// so the mapping helpers below ignore parse errors and fall back to defaults.

func logConfig(cfg *config.Config) logx.Config {
	lt := cfg.Logging.Telegram
	chatID := lt.ChatID
	if chatID == 0 {
		chatID = cfg.Telegram.ChatID
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
		Telegram: logx.TelegramConfig{
			// A dry-run sender logs what it sends; feeding it log records would loop.
			Enabled:    lt.Enabled && !cfg.Telegram.DryRun,
			ChatID:     chatID,
			ThreadID:   lt.ThreadID,
			MinLevel:   lt.MinLevel,
			RatePerSec: lt.RatePerSec,
		},
	}
}

func senderConfig(cfg *config.Config) telegram.Config {
	timeout, _ := config.ParseDurationField("telegram.timeout", cfg.Telegram.Timeout)
	return telegram.Config{
		Token:      cfg.Telegram.Token,
		APIURL:     cfg.Telegram.APIURL,
		Timeout:    timeout,
		RatePerSec: cfg.Telegram.RatePerSec,
		DryRun:     cfg.Telegram.DryRun,
	}
}

func notifyConfig(cfg *config.Config) notify.Config {
	return notify.Config{
		Target:         kit.ChatTarget{ChatID: cfg.Telegram.ChatID, ThreadID: cfg.Telegram.ThreadID},
		MaxMessageSize: cfg.Notify.MaxMessageSize,
		Policy:         cfg.Notify.Policy,
		Header:         cfg.Notify.Header,
		DisablePreview: cfg.Notify.DisablePreview,
	}
}

func schedulerConfig(cfg *config.Config) scheduler.Config {
	runTimeout, _ := config.ParseDurationField("scheduler.run_timeout", cfg.Scheduler.RunTimeout)
	return scheduler.Config{
		Schedule:      cfg.ScheduleSpec(),
		Timezone:      cfg.Scheduler.Timezone,
		RunOnStart:    cfg.Scheduler.RunOnStart,
		StartupSpread: cfg.Scheduler.StartupSpread,
		RunTimeout:    runTimeout,
	}
}

func storageConfig(cfg *config.Config) storage.Config {
	busy, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		DSN:         cfg.Storage.DSN,
		BusyTimeout: busy,
		MaxConns:    cfg.Storage.MaxConns,
	}
}

func redisOptions(cfg *config.Config) (cycle.RedisOptions, string, time.Duration) {
	rc := cfg.Redis
	ttl, _ := config.ParseDurationOrDefault("redis.lock_ttl", rc.LockTTL, config.DefaultLockTTL)
	return cycle.RedisOptions{
		Addr:     rc.Addr,
		Username: rc.Username,
		Password: rc.Password,
		DB:       rc.DB,
	}, rc.Key, ttl
}

func httpOptions(cfg *config.Config) httpapi.Options {
	rt, _ := config.ParseDurationField("http.request_timeout", cfg.HTTP.RequestTimeout)
	return httpapi.Options{Addr: strings.TrimSpace(cfg.HTTP.Addr), RequestTimeout: rt}
}

func providerTimeout(cfg *config.Config) time.Duration {
	d, _ := config.ParseDurationOrDefault("provider_timeout", cfg.ProviderTimeout, defaultProviderTimeout)
	return d
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	d, _ := config.ParseDurationOrDefault("shutdown_timeout", cfg.ShutdownTimeout, defaultShutdownTimeout)
	return d
}

// buildProviders instantiates the enabled providers in config order, which is
// also the cycle's merge order.
func buildProviders(cfg *config.Config, client *http.Client) ([]provider.Provider, error) {
	out := make([]provider.Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		timeout, _ := config.ParseDurationField("providers.timeout", pc.Timeout)
		p, err := provider.New(provider.Config{
			Name:     pc.DisplayName(),
			Kind:     pc.Kind,
			Enabled:  pc.Enabled,
			URL:      pc.URL,
			Timeout:  timeout,
			Origin:   pc.Origin,
			MaxPages: pc.MaxPages,
			Body:     pc.Body,
			LinkBase: pc.LinkBase,
			Adults:   pc.Adults,
		}, client)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func newProviderClient() *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConnsPerHost = 4
	tr.ResponseHeaderTimeout = 30 * time.Second
	return &http.Client{Transport: tr}
}
