package storage

import (
	"context"
	"time"

	"raidbot/internal/eventbus"
	"raidbot/pkg/logx"
)

var outcomes = map[eventbus.Type]Outcome{
	eventbus.MessageSent:          OutcomeSent,
	eventbus.MessageFloodWait:     OutcomeFloodWait,
	eventbus.MessageSlowMode:      OutcomeSlowMode,
	eventbus.MessageFailed:        OutcomeFailed,
	eventbus.ChannelConnectFailed: OutcomeConnectFailed,
}

// EntryFor maps a raid event to a journal entry. Events that are not attempts
// (connected, interval changes) report false.
func EntryFor(runID string, e eventbus.Event) (Entry, bool) {
	out, ok := outcomes[e.Type]
	if !ok {
		return Entry{}, false
	}
	return Entry{
		Time:    e.Time,
		RunID:   runID,
		Channel: e.Channel,
		Attempt: e.Attempt,
		Outcome: out,
		WaitMS:  e.Wait.Milliseconds(),
		Error:   e.Error,
	}, true
}

// Record appends every attempt event from events until the channel is closed
// or ctx is done. Append failures are logged and never stop the raid.
//
// Appends are not interrupted by ctx: once ctx is done the buffered events
// are flushed under drainTimeout instead.
func Record(ctx context.Context, j Journal, runID string, events <-chan eventbus.Event, log logx.Logger) {
	if log.IsZero() {
		log = logx.Nop()
	}
	appendCtx := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			drain(j, runID, events, log)
			return
		}
		select {
		case <-ctx.Done():
			drain(j, runID, events, log)
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			appendEvent(appendCtx, j, runID, e, log)
		}
	}
}

const drainTimeout = 2 * time.Second

// drain flushes what is already buffered so the last attempts before
// shutdown still land in the journal.
func drain(j Journal, runID string, events <-chan eventbus.Event, log logx.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			appendEvent(ctx, j, runID, e, log)
		default:
			return
		}
	}
}

func appendEvent(ctx context.Context, j Journal, runID string, e eventbus.Event, log logx.Logger) {
	entry, ok := EntryFor(runID, e)
	if !ok {
		return
	}
	if err := j.Append(ctx, entry); err != nil {
		log.Warn("journal append failed", logx.String("channel", e.Channel), logx.Err(err))
	}
}
