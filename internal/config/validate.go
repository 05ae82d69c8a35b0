package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// validateAccount checks presence and JSON type of the account fields before the
// typed decode, so a missing api_id is reported as missing rather than as 0.
func validateAccount(raw map[string]json.RawMessage) error {
	var errs []error
	check := func(key, want string) {
		v, ok := raw[key]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: required", key))
			return
		}
		if got := jsonType(v); got != want {
			errs = append(errs, fmt.Errorf("%s: must be a %s, got %s", key, want, got))
		}
	}
	check("api_id", "number")
	check("api_hash", "string")
	check("app_short_name", "string")
	return errors.Join(errs...)
}

func jsonType(v json.RawMessage) string {
	s := strings.TrimSpace(string(v))
	if s == "" {
		return "empty"
	}
	switch s[0] {
	case '"':
		return "string"
	case '{':
		return "object"
	case '[':
		return "array"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}

// validate runs semantic checks on a decoded config.
func validate(cfg *Config) error {
	var errs []error
	if strings.TrimSpace(cfg.APIHash) == "" {
		errs = append(errs, errors.New("api_hash: must not be empty"))
	}
	if strings.TrimSpace(cfg.AppShortName) == "" {
		errs = append(errs, errors.New("app_short_name: must not be empty"))
	}
	for _, name := range cfg.RaidOrder {
		rc := cfg.Raid[name]
		prefix := "raid." + name
		if strings.TrimSpace(rc.MessageType) == "" {
			errs = append(errs, fmt.Errorf("%s.message_type: required", prefix))
		} else if _, ok := cfg.Messages[rc.MessageType]; !ok {
			errs = append(errs, fmt.Errorf("%s.message_type: unknown message %q", prefix, rc.MessageType))
		}
		if rc.WaitInterval < 0 {
			errs = append(errs, fmt.Errorf("%s.wait_interval: must be >= 0", prefix))
		}
		if rc.IncreaseWaitInterval < 0 {
			errs = append(errs, fmt.Errorf("%s.increase_wait_interval: must be >= 0", prefix))
		}
	}
	if cfg.RateLimit.Budget < 0 {
		errs = append(errs, errors.New("rate_limit.budget: must be >= 0"))
	}
	if _, err := cfg.RateWindow(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.Startup(); err != nil {
		errs = append(errs, err)
	}
	if cfg.Journal != nil {
		switch d := strings.ToLower(strings.TrimSpace(cfg.Journal.Driver)); d {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			errs = append(errs, fmt.Errorf("journal.driver: unknown driver %q", cfg.Journal.Driver))
		}
		if _, err := ParseDurationField("journal.busy_timeout", cfg.Journal.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
