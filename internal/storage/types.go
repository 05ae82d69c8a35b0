package storage

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("journal closed")

// Config configures the send journal.
//
// Driver values:
//   - "file": JSON Lines, one entry per line
//   - "sqlite": SQLite database file (build tag sqlite)
//
// If Driver is empty or "none", no journal is written.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Outcome of one recorded attempt.
type Outcome string

const (
	OutcomeSent          Outcome = "sent"
	OutcomeFloodWait     Outcome = "flood_wait"
	OutcomeSlowMode      Outcome = "slow_mode"
	OutcomeFailed        Outcome = "failed"
	OutcomeConnectFailed Outcome = "connect_failed"
)

// Entry records one send attempt or connect failure.
// Keep it compact and schema-stable.
type Entry struct {
	Time    time.Time `json:"time"`
	RunID   string    `json:"run_id"`
	Channel string    `json:"channel"`
	Attempt int       `json:"attempt,omitempty"`
	Outcome Outcome   `json:"outcome"`
	WaitMS  int64     `json:"wait_ms,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Journal is append-only; nothing in the bot reads it back.
type Journal interface {
	Append(ctx context.Context, e Entry) error
	Close() error
}
