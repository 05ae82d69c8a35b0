package raid

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"raidbot/internal/eventbus"
	"raidbot/internal/messenger"
	"raidbot/pkg/logx"
)

// Orchestrator drives the connect phase and then the raid phase over a set of
// channel records. One goroutine runs per channel per phase; a failure or
// panic in one channel never reaches another.
type Orchestrator struct {
	client   messenger.Client
	entities *messenger.EntityCache
	log      logx.Logger
	bus      eventbus.Bus
	sleeper  Sleeper
	compose  Composer
	exists   func(path string) bool
}

type Option func(*Orchestrator)

func WithLogger(log logx.Logger) Option { return func(o *Orchestrator) { o.log = log } }

// WithBus publishes lifecycle events to b.
func WithBus(b eventbus.Bus) Option { return func(o *Orchestrator) { o.bus = b } }

func WithSleeper(s Sleeper) Option { return func(o *Orchestrator) { o.sleeper = s } }

// WithComposer sets how message templates become outgoing text.
func WithComposer(c Composer) Option { return func(o *Orchestrator) { o.compose = c } }

// WithFileCheck replaces the image existence check.
func WithFileCheck(fn func(path string) bool) Option { return func(o *Orchestrator) { o.exists = fn } }

func New(client messenger.Client, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:  client,
		log:     logx.Nop(),
		sleeper: TimerSleeper{},
		compose: Plain,
		exists:  regularFile,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	o.log = o.log.With(logx.String("comp", "raid"))
	o.entities = messenger.NewEntityCache(client.ResolveEntity)
	return o
}

func regularFile(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}

// Run connects every channel, then raids the ones that connected. It returns
// every record in input order with its final state. Cancelling ctx abandons
// in-flight tasks at their next suspension point.
func (o *Orchestrator) Run(ctx context.Context, channels []Channel) []Channel {
	connected := o.ConnectAll(ctx, channels)
	if ctx.Err() != nil {
		return connected
	}

	idx := make([]int, 0, len(connected))
	targets := make([]Channel, 0, len(connected))
	for i, c := range connected {
		if c.Connected {
			idx = append(idx, i)
			targets = append(targets, c)
		}
	}
	o.log.Info("connect phase finished",
		logx.Int("channels", len(channels)),
		logx.Int("connected", len(targets)),
	)

	raided := o.RaidAll(ctx, targets)
	out := append([]Channel(nil), connected...)
	for j, i := range idx {
		out[i] = raided[j]
	}
	return out
}

// ConnectAll runs the connect phase and waits for every channel to settle.
func (o *Orchestrator) ConnectAll(ctx context.Context, channels []Channel) []Channel {
	return o.fanOut(ctx, "connect", channels, o.connect)
}

// RaidAll runs the raid phase for already connected channels.
func (o *Orchestrator) RaidAll(ctx context.Context, channels []Channel) []Channel {
	return o.fanOut(ctx, "raid", channels, o.raid)
}

func (o *Orchestrator) fanOut(ctx context.Context, phase string, channels []Channel, task func(context.Context, Channel) Channel) []Channel {
	out := make([]Channel, len(channels))
	var g errgroup.Group
	for i := range channels {
		c := channels[i]
		g.Go(func() (err error) {
			out[i] = c
			defer func() {
				if r := recover(); r != nil {
					o.log.Error("channel task panic",
						logx.String("phase", phase),
						logx.String("channel", c.Name),
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					out[i] = o.abort(out[i], phase)
				}
			}()
			out[i] = task(ctx, c)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (o *Orchestrator) abort(c Channel, phase string) Channel {
	if phase == "connect" {
		c.Connected = false
		c.State = StateConnectFailed
		return c
	}
	c.Loop = false
	c.State = StateLoopStopped
	return c
}

func (o *Orchestrator) connect(ctx context.Context, c Channel) Channel {
	log := o.log.With(logx.String("channel", c.Name))
	c.State = StateConnecting

	if err := o.sleeper.Sleep(ctx, c.Splay); err != nil {
		c.State = StateExhausted
		return c
	}

	log.Info("connecting", logx.Duration("splay", c.Splay))
	if err := o.client.Connect(ctx, c.Name); err != nil {
		if ctx.Err() != nil {
			c.State = StateExhausted
			return c
		}
		c.Connected = false
		c.State = StateConnectFailed
		log.Error("connect failed", logx.Err(err))
		o.publish(eventbus.Event{Type: eventbus.ChannelConnectFailed, Channel: c.Name, Error: err.Error()})
		return c
	}

	c.Connected = true
	c.State = StateConnected
	log.Info("connected")
	o.publish(eventbus.Event{Type: eventbus.ChannelConnected, Channel: c.Name})
	return c
}

func (o *Orchestrator) raid(ctx context.Context, c Channel) Channel {
	if err := o.sleeper.Sleep(ctx, c.Splay); err != nil {
		c.State = StateExhausted
		return c
	}
	if c.MessageOnce() {
		return o.sendSingle(ctx, c)
	}
	return o.sendLooped(ctx, c)
}

func (o *Orchestrator) sendSingle(ctx context.Context, c Channel) Channel {
	o.log.Info("raiding once", logx.String("channel", c.Name))
	c.State = StateSingleSend
	c = o.SendMessage(ctx, c)
	if ctx.Err() != nil {
		c.State = StateExhausted
		return c
	}
	c.State = StateDone
	return c
}

func (o *Orchestrator) sendLooped(ctx context.Context, c Channel) Channel {
	log := o.log.With(logx.String("channel", c.Name))
	c = CalculateWaitInterval(c)
	c.Loop = true
	c.State = StateLoopActive
	log.Info("raiding on interval",
		logx.Duration("interval", c.CalculatedWaitInterval),
		logx.Duration("increase", c.IncreaseWaitInterval),
	)

	for c.Loop {
		c = o.SendMessage(ctx, c)
		if ctx.Err() != nil {
			c.State = StateExhausted
			return c
		}
		if !c.Loop {
			break
		}

		var changed bool
		c, changed = RecalculateWaitInterval(c)
		if changed {
			log.Info("wait interval increased", logx.Duration("interval", c.CalculatedWaitInterval))
			o.publish(eventbus.Event{
				Type:    eventbus.IntervalChanged,
				Channel: c.Name,
				Attempt: c.Count,
				Wait:    c.CalculatedWaitInterval,
			})
		}

		if err := o.sleeper.Sleep(ctx, c.CalculatedWaitInterval); err != nil {
			c.State = StateExhausted
			return c
		}
	}
	c.State = StateLoopStopped
	return c
}

// SendMessage performs one counted attempt and applies the failure policy:
// flood waits sleep in place, slow mode resets the interval, anything else
// stops the loop.
func (o *Orchestrator) SendMessage(ctx context.Context, c Channel) Channel {
	c = IncrementCount(c)
	log := o.log.With(logx.String("channel", c.Name), logx.Int("attempt", c.Count))
	log.Info("sending message")

	err := o.dispatch(ctx, c)
	if err == nil {
		o.publish(eventbus.Event{Type: eventbus.MessageSent, Channel: c.Name, Attempt: c.Count})
		return c
	}
	if ctx.Err() != nil {
		return c
	}

	kind, wait := messenger.Classify(err)
	switch kind {
	case messenger.KindFloodWait:
		log.Warn("flood wait", logx.Duration("wait", wait))
		o.publish(eventbus.Event{Type: eventbus.MessageFloodWait, Channel: c.Name, Attempt: c.Count, Wait: wait, Error: err.Error()})
		_ = o.sleeper.Sleep(ctx, wait)
	case messenger.KindSlowModeWait:
		c = HandleSlowMode(c, wait)
		log.Warn("slow mode", logx.Duration("wait", wait), logx.Duration("interval", c.CalculatedWaitInterval))
		o.publish(eventbus.Event{Type: eventbus.MessageSlowMode, Channel: c.Name, Attempt: c.Count, Wait: wait, Error: err.Error()})
	default:
		c = HandleUnknown(c)
		log.Error("send failed, channel stopped", logx.Err(err))
		o.publish(eventbus.Event{Type: eventbus.MessageFailed, Channel: c.Name, Attempt: c.Count, Error: err.Error()})
	}
	return c
}

func (o *Orchestrator) dispatch(ctx context.Context, c Channel) error {
	entity, err := o.entities.Get(ctx, c.Name)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", c.Name, err)
	}
	file := ""
	if c.Image != "" {
		if o.exists(c.Image) {
			file = c.Image
		} else {
			o.log.Warn("image not found, sending text only",
				logx.String("channel", c.Name),
				logx.String("image", c.Image),
			)
		}
	}
	return o.client.Send(ctx, entity, o.compose(c.Message), file)
}

func (o *Orchestrator) publish(e eventbus.Event) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(e)
}
