package raid

import (
	"fmt"
	"time"

	"raidbot/internal/config"
	"raidbot/internal/splay"
)

// slowModePad is added on top of the provider's slow-mode interval.
const slowModePad = 10 * time.Second

// Channel is the per-channel record. Each record is owned by one goroutine at a
// time (its connect task, then its raid task); helpers below take and return
// values so no record is shared.
type Channel struct {
	Name  string
	Splay time.Duration

	// WaitInterval zero means the channel is raided once.
	WaitInterval         time.Duration
	IncreaseWaitInterval time.Duration

	Message string
	Image   string

	Count                  int
	CalculatedWaitInterval time.Duration
	Connected              bool
	Loop                   bool
	State                  State
}

// BuildChannels creates one record per planned channel, in plan order.
func BuildChannels(cfg *config.Config, plan splay.Plan) ([]Channel, error) {
	out := make([]Channel, 0, plan.Len())
	for _, name := range plan.Channels() {
		rc, ok := cfg.Raid[name]
		if !ok {
			return nil, fmt.Errorf("raid: channel %q not configured", name)
		}
		msg, ok := cfg.Message(name)
		if !ok {
			return nil, fmt.Errorf("raid: channel %q: unknown message_type %q", name, rc.MessageType)
		}
		sp, _ := plan.Splay(name)
		out = append(out, Channel{
			Name:                 name,
			Splay:                sp,
			WaitInterval:         config.Seconds(rc.WaitInterval),
			IncreaseWaitInterval: config.Seconds(rc.IncreaseWaitInterval),
			Message:              msg,
			Image:                rc.Image,
			State:                StateCreated,
		})
	}
	return out, nil
}

// MessageOnce reports whether the channel takes the single-send path.
func (c Channel) MessageOnce() bool { return c.WaitInterval <= 0 }

// IncrementCount returns c with one more attempt counted.
func IncrementCount(c Channel) Channel {
	c.Count++
	return c
}

// CalculateWaitInterval seeds the loop interval: the configured interval plus
// the channel's own splay.
func CalculateWaitInterval(c Channel) Channel {
	c.CalculatedWaitInterval = c.WaitInterval + c.Splay
	return c
}

// RecalculateWaitInterval applies linear backoff after a looped send.
// The second result reports whether the interval changed.
func RecalculateWaitInterval(c Channel) (Channel, bool) {
	if c.IncreaseWaitInterval <= 0 {
		return c, false
	}
	c.CalculatedWaitInterval += c.IncreaseWaitInterval
	return c, true
}

// HandleSlowMode replaces the interval with the provider's slow-mode wait plus a pad.
func HandleSlowMode(c Channel, wait time.Duration) Channel {
	if wait < 0 {
		wait = 0
	}
	c.CalculatedWaitInterval = wait + slowModePad
	return c
}

// HandleUnknown stops the loop for good.
func HandleUnknown(c Channel) Channel {
	c.Loop = false
	c.State = StateLoopStopped
	return c
}
