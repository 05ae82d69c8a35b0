// Package splay spreads the first calls of every channel over time so the whole
// set stays under the provider's shared call budget.
//
// With a budget of B calls per window W, the window is padded by 20% and
// channels are spaced evenly over as many padded windows as they need, but
// never further apart than one padded window divided by B.
package splay

import (
	"sync"
	"time"
)

const (
	DefaultBudget = 20
	DefaultWindow = 60 * time.Second

	// Each window is widened by 12/10 to leave headroom over the provider's limit.
	windowPadNum = 12
	windowPadDen = 10
)

// Budget is the provider call budget: Calls per Window.
type Budget struct {
	Calls  int
	Window time.Duration
}

func (b Budget) withDefaults() Budget {
	if b.Calls <= 0 {
		b.Calls = DefaultBudget
	}
	if b.Window <= 0 {
		b.Window = DefaultWindow
	}
	return b
}

// SegmentTime is the padded window length.
func (b Budget) SegmentTime() time.Duration {
	b = b.withDefaults()
	return b.Window * windowPadNum / windowPadDen
}

// Recommend returns the spacing between consecutive channels for a set of
// channels, rounded up to whole seconds. Zero channels yield zero.
func Recommend(channels int, b Budget) time.Duration {
	if channels <= 0 {
		return 0
	}
	b = b.withDefaults()
	segmentTime := int64(b.SegmentTime())
	segments := ceilDiv(int64(channels), int64(b.Calls))
	totalSegmentTime := segments * segmentTime

	sec := int64(time.Second)
	defaultSplay := ceilDiv(segmentTime, int64(b.Calls)*sec)
	calculatedSplay := ceilDiv(totalSegmentTime, int64(channels)*sec)

	return time.Duration(min(defaultSplay, calculatedSplay)) * time.Second
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

// Plan is the splay assigned to every channel.
type Plan struct {
	Recommended time.Duration
	order       []string
	byName      map[string]time.Duration
}

// Compute assigns ordinal*recommended to each channel, in the given order.
// Duplicate names keep their first position and are not counted twice.
func Compute(channels []string, b Budget) Plan {
	p := Plan{byName: make(map[string]time.Duration, len(channels))}
	for _, name := range channels {
		if _, dup := p.byName[name]; dup {
			continue
		}
		p.byName[name] = 0
		p.order = append(p.order, name)
	}
	p.Recommended = Recommend(len(p.order), b)
	for i, name := range p.order {
		p.byName[name] = time.Duration(i+1) * p.Recommended
	}
	return p
}

// Splay returns the channel's splay and whether it is part of the plan.
func (p Plan) Splay(channel string) (time.Duration, bool) {
	d, ok := p.byName[channel]
	return d, ok
}

// Channels returns channel names in assignment order.
func (p Plan) Channels() []string {
	return append([]string(nil), p.order...)
}

func (p Plan) Len() int { return len(p.order) }

// Planner computes the plan once and serves it for the process lifetime.
type Planner struct {
	once     sync.Once
	plan     Plan
	channels func() []string
	budget   Budget
}

// NewPlanner defers reading the channel list until the first Plan call.
func NewPlanner(channels func() []string, b Budget) *Planner {
	return &Planner{channels: channels, budget: b}
}

func (p *Planner) Plan() Plan {
	p.once.Do(func() {
		var names []string
		if p.channels != nil {
			names = p.channels()
		}
		p.plan = Compute(names, p.budget)
	})
	return p.plan
}
