// Package messenger defines the boundary between the raid orchestrator and a
// messaging provider: joining channels, resolving them to sendable entities,
// sending text or photos, and the tagged failures a send can produce.
package messenger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Entity is a provider handle for a resolved channel.
type Entity interface {
	// Recipient is the provider-side identifier (e.g. chat id).
	Recipient() string
}

// Client is implemented by messaging transports.
// Implementations must be safe for concurrent use by many channel tasks.
type Client interface {
	Connect(ctx context.Context, channel string) error
	ResolveEntity(ctx context.Context, channel string) (Entity, error)
	// Send posts text to entity, attaching file as a photo when file is non-empty.
	Send(ctx context.Context, entity Entity, text string, file string) error
	Logout(ctx context.Context) error
}

// Kind classifies a send failure.
type Kind int

const (
	// KindOther is any failure without a wait hint; it stops the channel.
	KindOther Kind = iota
	// KindFloodWait means no further calls should be made for Wait.
	KindFloodWait
	// KindSlowModeWait means this channel only accepts a post every Wait.
	KindSlowModeWait
)

func (k Kind) String() string {
	switch k {
	case KindFloodWait:
		return "flood_wait"
	case KindSlowModeWait:
		return "slow_mode_wait"
	default:
		return "other"
	}
}

// Error is the tagged failure returned by Client implementations.
type Error struct {
	Kind Kind
	Wait time.Duration
	Err  error
}

func (e *Error) Error() string {
	if e.Kind == KindOther {
		if e.Err == nil {
			return "messenger: send failed"
		}
		return e.Err.Error()
	}
	if e.Err == nil {
		return fmt.Sprintf("%s (%s)", e.Kind, e.Wait)
	}
	return fmt.Sprintf("%s (%s): %v", e.Kind, e.Wait, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// FloodWait builds a rate-limit failure.
func FloodWait(wait time.Duration, err error) error {
	return &Error{Kind: KindFloodWait, Wait: wait, Err: err}
}

// SlowModeWait builds a slow-mode failure.
func SlowModeWait(wait time.Duration, err error) error {
	return &Error{Kind: KindSlowModeWait, Wait: wait, Err: err}
}

// Classify returns the failure kind and wait hint carried by err.
// Untagged errors are KindOther.
func Classify(err error) (Kind, time.Duration) {
	var me *Error
	if errors.As(err, &me) {
		if me.Wait < 0 {
			return me.Kind, 0
		}
		return me.Kind, me.Wait
	}
	return KindOther, 0
}
