package config

import (
	"io/fs"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DEALWATCH"

// secrets are the values that should not live in the config file.
// Set variables win over the file; unset ones leave the file value alone.
type secrets struct {
	TelegramToken  string `envconfig:"TELEGRAM_TOKEN"`
	TelegramChatID int64  `envconfig:"TELEGRAM_CHAT_ID"`
	StorageDSN     string `envconfig:"STORAGE_DSN"`
	RedisAddr      string `envconfig:"REDIS_ADDR"`
	RedisPassword  string `envconfig:"REDIS_PASSWORD"`
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return errors.Wrapf(err, "env file %s", path)
	}
	return nil
}

// ApplyEnv overlays DEALWATCH_* secrets onto cfg.
func ApplyEnv(cfg *Config) error {
	var s secrets
	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return errors.Wrap(err, "env config")
	}
	if s.TelegramToken != "" {
		cfg.Telegram.Token = s.TelegramToken
	}
	if s.TelegramChatID != 0 {
		cfg.Telegram.ChatID = s.TelegramChatID
	}
	if s.StorageDSN != "" {
		cfg.Storage.DSN = s.StorageDSN
	}
	if s.RedisAddr != "" {
		if cfg.Redis == nil {
			cfg.Redis = &RedisConfig{}
		}
		cfg.Redis.Addr = s.RedisAddr
	}
	if s.RedisPassword != "" && cfg.Redis != nil {
		cfg.Redis.Password = s.RedisPassword
	}
	return nil
}
