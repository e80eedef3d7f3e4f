package config

import (
	"reflect"

	logx "dealwatch/pkg/logx"
)

// Change describes what a reload touched. Sections in Restart cannot be
// applied to a running process; the new values take effect after a restart.
type Change struct {
	Sections []string
	Restart  []string
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

// Fields returns log attrs for the change. Secrets are never included.
func (c Change) Fields() []logx.Field {
	return []logx.Field{logx.Strs("changed", c.Sections), logx.Strs("needs_restart", c.Restart)}
}

// Diff compares two configs section by section.
func Diff(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	section := func(name string, restart bool, a, b any) {
		if reflect.DeepEqual(a, b) {
			return
		}
		ch.Sections = append(ch.Sections, name)
		if restart {
			ch.Restart = append(ch.Restart, name)
		}
	}

	section("logging", false, oldCfg.Logging, newCfg.Logging)
	section("notify", false, oldCfg.Notify, newCfg.Notify)
	section("scheduler", false, oldCfg.Scheduler, newCfg.Scheduler)
	section("providers", false,
		[]any{oldCfg.Providers, oldCfg.ProviderTimeout},
		[]any{newCfg.Providers, newCfg.ProviderTimeout})
	section("telegram", true, oldCfg.Telegram, newCfg.Telegram)
	section("storage", true, oldCfg.Storage, newCfg.Storage)
	section("redis", true, oldCfg.Redis, newCfg.Redis)
	section("http", true, oldCfg.HTTP, newCfg.HTTP)
	section("shutdown_timeout", false, oldCfg.ShutdownTimeout, newCfg.ShutdownTimeout)
	return ch
}
