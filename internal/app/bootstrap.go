package app

import (
	"time"

	"raidbot/internal/config"
	"raidbot/internal/storage"
	"raidbot/internal/transport/telegram"
	"raidbot/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Logging.Telegram.ChatID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapClientConfig(cfg *config.Config, window time.Duration) telegram.Config {
	return telegram.Config{
		Token:        cfg.Telegram.Token,
		APIURL:       cfg.Telegram.APIURL,
		AppName:      cfg.AppShortName,
		Budget:       cfg.RateBudget(),
		Window:       window,
		LogoutOnExit: cfg.Telegram.LogoutOnExit,
	}
}

// mapJournalConfig returns a zero Config (journal disabled) when the section
// is omitted.
func mapJournalConfig(cfg *config.Config) (storage.Config, error) {
	if cfg.Journal == nil {
		return storage.Config{}, nil
	}
	busy, err := config.ParseDurationField("journal.busy_timeout", cfg.Journal.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      cfg.Journal.Driver,
		Path:        cfg.Journal.Path,
		BusyTimeout: busy,
	}, nil
}
