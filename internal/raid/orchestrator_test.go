package raid

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"raidbot/internal/eventbus"
	"raidbot/internal/messenger"
)

type chatEntity string

func (c chatEntity) Recipient() string { return string(c) }

type sentMessage struct {
	channel string
	text    string
	file    string
}

// fakeClient scripts per-channel outcomes. sendErr receives the 1-based
// attempt number for the channel.
type fakeClient struct {
	mu         sync.Mutex
	connectErr map[string]error
	sendErr    func(channel string, attempt int) error
	resolves   map[string]int
	sent       []sentMessage
	attempts   map[string]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		connectErr: map[string]error{},
		resolves:   map[string]int{},
		attempts:   map[string]int{},
	}
}

func (f *fakeClient) Connect(_ context.Context, channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectErr[channel]
}

func (f *fakeClient) ResolveEntity(_ context.Context, channel string) (messenger.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolves[channel]++
	return chatEntity(channel), nil
}

func (f *fakeClient) Send(_ context.Context, entity messenger.Entity, text, file string) error {
	f.mu.Lock()
	ch := entity.Recipient()
	f.attempts[ch]++
	n := f.attempts[ch]
	f.sent = append(f.sent, sentMessage{channel: ch, text: text, file: file})
	fn := f.sendErr
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ch, n)
}

func (f *fakeClient) Logout(context.Context) error { return nil }

func (f *fakeClient) sentTo(channel string) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, m := range f.sent {
		if m.channel == channel {
			out = append(out, m)
		}
	}
	return out
}

// recordingSleeper returns immediately and records every requested duration.
type recordingSleeper struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.slept = append(s.slept, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) durations() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.slept...)
}

func stopAfter(n int) func(string, int) error {
	return func(_ string, attempt int) error {
		if attempt > n {
			return errors.New("chat write forbidden")
		}
		return nil
	}
}

func newTestOrchestrator(c messenger.Client, s Sleeper, opts ...Option) *Orchestrator {
	base := []Option{
		WithSleeper(s),
		WithFileCheck(func(string) bool { return true }),
	}
	return New(c, append(base, opts...)...)
}

func TestRunSingleSend(t *testing.T) {
	client := newFakeClient()
	sleeper := &recordingSleeper{}
	o := newTestOrchestrator(client, sleeper)

	out := o.Run(context.Background(), []Channel{{Name: "general", Message: "hello"}})

	got := out[0]
	if got.Count != 1 || got.State != StateDone || got.Loop {
		t.Fatalf("unexpected record %+v", got)
	}
	sent := client.sentTo("general")
	if len(sent) != 1 || sent[0].text != "hello" || sent[0].file != "" {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestRunLoopIntervalsGrowLinearly(t *testing.T) {
	client := newFakeClient()
	client.sendErr = stopAfter(2)
	sleeper := &recordingSleeper{}
	o := newTestOrchestrator(client, sleeper)

	in := Channel{
		Name:                 "general",
		Splay:                3 * time.Second,
		WaitInterval:         30 * time.Second,
		IncreaseWaitInterval: 5 * time.Second,
		Message:              "hello",
	}
	out := o.Run(context.Background(), []Channel{in})

	// connect splay, raid splay, then the two loop waits.
	want := []time.Duration{3 * time.Second, 3 * time.Second, 38 * time.Second, 43 * time.Second}
	got := sleeper.durations()
	if len(got) != len(want) {
		t.Fatalf("sleeps = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sleeps = %v, want %v", got, want)
		}
	}
	if out[0].Count != 3 || out[0].Loop || out[0].State != StateLoopStopped {
		t.Fatalf("unexpected record %+v", out[0])
	}
	if out[0].CalculatedWaitInterval != 43*time.Second {
		t.Fatalf("interval = %s, want 43s", out[0].CalculatedWaitInterval)
	}
}

func TestRunLoopWithoutIncreaseKeepsInterval(t *testing.T) {
	client := newFakeClient()
	client.sendErr = stopAfter(3)
	sleeper := &recordingSleeper{}
	o := newTestOrchestrator(client, sleeper)

	out := o.Run(context.Background(), []Channel{{Name: "c", WaitInterval: 10 * time.Second, Message: "m"}})

	for _, d := range sleeper.durations()[2:] {
		if d != 10*time.Second {
			t.Fatalf("sleeps = %v", sleeper.durations())
		}
	}
	if out[0].Count != 4 {
		t.Fatalf("count = %d, want 4", out[0].Count)
	}
}

func TestSendMessageSlowModeResetsInterval(t *testing.T) {
	client := newFakeClient()
	client.sendErr = func(string, int) error { return messenger.SlowModeWait(20*time.Second, nil) }
	o := newTestOrchestrator(client, &recordingSleeper{})

	c := Channel{Name: "c", WaitInterval: 300 * time.Second, CalculatedWaitInterval: 999 * time.Second, Loop: true}
	c = o.SendMessage(context.Background(), c)

	if c.CalculatedWaitInterval != 30*time.Second {
		t.Fatalf("interval = %s, want 30s", c.CalculatedWaitInterval)
	}
	if !c.Loop || c.Count != 1 {
		t.Fatalf("unexpected record %+v", c)
	}
}

func TestSendMessageFloodWaitSleepsAndContinues(t *testing.T) {
	client := newFakeClient()
	client.sendErr = func(string, int) error { return messenger.FloodWait(7*time.Second, nil) }
	sleeper := &recordingSleeper{}
	o := newTestOrchestrator(client, sleeper)

	c := Channel{Name: "c", CalculatedWaitInterval: 40 * time.Second, Loop: true}
	c = o.SendMessage(context.Background(), c)

	if got := sleeper.durations(); len(got) != 1 || got[0] != 7*time.Second {
		t.Fatalf("sleeps = %v, want [7s]", got)
	}
	if !c.Loop || c.CalculatedWaitInterval != 40*time.Second {
		t.Fatalf("unexpected record %+v", c)
	}
}

func assertSleeps(t *testing.T, got, want []time.Duration) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("sleeps = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sleeps = %v, want %v", got, want)
		}
	}
}

func TestRunLoopFloodWaitSleepsThenKeepsInterval(t *testing.T) {
	client := newFakeClient()
	client.sendErr = func(_ string, attempt int) error {
		switch attempt {
		case 2:
			return messenger.FloodWait(7*time.Second, nil)
		case 4:
			return errors.New("chat write forbidden")
		}
		return nil
	}
	sleeper := &recordingSleeper{}
	o := newTestOrchestrator(client, sleeper)

	out := o.Run(context.Background(), []Channel{{
		Name:                 "general",
		Splay:                3 * time.Second,
		WaitInterval:         30 * time.Second,
		IncreaseWaitInterval: 5 * time.Second,
		Message:              "hello",
	}})

	// The flood wait comes before the next regular interval, which keeps growing
	// from where it was.
	assertSleeps(t, sleeper.durations(), []time.Duration{
		3 * time.Second, 3 * time.Second,
		38 * time.Second,
		7 * time.Second, 43 * time.Second,
		48 * time.Second,
	})
	if out[0].Count != 4 || out[0].State != StateLoopStopped {
		t.Fatalf("unexpected record %+v", out[0])
	}
	if out[0].CalculatedWaitInterval != 48*time.Second {
		t.Fatalf("interval = %s, want 48s", out[0].CalculatedWaitInterval)
	}
}

func TestRunLoopSlowModeResetsNextInterval(t *testing.T) {
	client := newFakeClient()
	client.sendErr = func(_ string, attempt int) error {
		switch attempt {
		case 2:
			return messenger.SlowModeWait(20*time.Second, nil)
		case 4:
			return errors.New("chat write forbidden")
		}
		return nil
	}
	sleeper := &recordingSleeper{}
	o := newTestOrchestrator(client, sleeper)

	out := o.Run(context.Background(), []Channel{{
		Name:                 "general",
		Splay:                3 * time.Second,
		WaitInterval:         300 * time.Second,
		IncreaseWaitInterval: 5 * time.Second,
		Message:              "hello",
	}})

	// slow mode wait 20s + 10s pad + 5s increase, regardless of the 308s before it.
	assertSleeps(t, sleeper.durations(), []time.Duration{
		3 * time.Second, 3 * time.Second,
		308 * time.Second,
		35 * time.Second,
		40 * time.Second,
	})
	if out[0].Count != 4 || out[0].State != StateLoopStopped {
		t.Fatalf("unexpected record %+v", out[0])
	}
}

func TestSendMessageUnknownErrorStopsLoop(t *testing.T) {
	client := newFakeClient()
	client.sendErr = func(string, int) error { return errors.New("boom") }
	o := newTestOrchestrator(client, &recordingSleeper{})

	c := o.SendMessage(context.Background(), Channel{Name: "c", Loop: true})
	if c.Loop || c.State != StateLoopStopped {
		t.Fatalf("unexpected record %+v", c)
	}
}

func TestRunConnectFailureExcludesChannel(t *testing.T) {
	client := newFakeClient()
	client.connectErr["private"] = errors.New("chat not found")
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()
	o := newTestOrchestrator(client, &recordingSleeper{}, WithBus(bus))

	out := o.Run(context.Background(), []Channel{
		{Name: "private", Message: "m"},
		{Name: "public", Message: "m"},
	})

	if out[0].Name != "private" || out[0].Connected || out[0].State != StateConnectFailed || out[0].Count != 0 {
		t.Fatalf("private = %+v", out[0])
	}
	if out[1].State != StateDone || out[1].Count != 1 {
		t.Fatalf("public = %+v", out[1])
	}
	if n := len(client.sentTo("private")); n != 0 {
		t.Fatalf("private received %d sends", n)
	}

	var failed bool
	for len(events) > 0 {
		if e := <-events; e.Type == eventbus.ChannelConnectFailed && e.Channel == "private" {
			failed = true
		}
	}
	if !failed {
		t.Fatal("missing connect_failed event")
	}
}

func TestDispatchMissingImageSendsText(t *testing.T) {
	client := newFakeClient()
	o := New(client,
		WithSleeper(&recordingSleeper{}),
		WithFileCheck(func(p string) bool { return p == "present.png" }),
	)

	o.Run(context.Background(), []Channel{
		{Name: "a", Message: "m", Image: "missing.png"},
		{Name: "b", Message: "m", Image: "present.png"},
	})

	if s := client.sentTo("a"); len(s) != 1 || s[0].file != "" {
		t.Fatalf("a sent = %+v", s)
	}
	if s := client.sentTo("b"); len(s) != 1 || s[0].file != "present.png" {
		t.Fatalf("b sent = %+v", s)
	}
}

func TestRunZeroChannels(t *testing.T) {
	o := newTestOrchestrator(newFakeClient(), &recordingSleeper{})
	if out := o.Run(context.Background(), nil); len(out) != 0 {
		t.Fatalf("out = %+v", out)
	}
}

func TestRunResolvesEntityOncePerChannel(t *testing.T) {
	client := newFakeClient()
	client.sendErr = stopAfter(4)
	o := newTestOrchestrator(client, &recordingSleeper{})

	o.Run(context.Background(), []Channel{{Name: "c", WaitInterval: time.Second, Message: "m"}})

	client.mu.Lock()
	defer client.mu.Unlock()
	if client.resolves["c"] != 1 {
		t.Fatalf("resolves = %d, want 1", client.resolves["c"])
	}
}

func TestRunCancelledMarksExhausted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := newFakeClient()
	o := newTestOrchestrator(client, &recordingSleeper{})

	out := o.Run(ctx, []Channel{{Name: "c", Message: "m"}})
	if out[0].State != StateExhausted {
		t.Fatalf("state = %s, want exhausted", out[0].State)
	}
	if len(client.sentTo("c")) != 0 {
		t.Fatal("no sends expected after cancel")
	}
}

type panicClient struct{ *fakeClient }

func (p panicClient) Send(_ context.Context, e messenger.Entity, text, file string) error {
	if e.Recipient() == "bad" {
		panic("provider blew up")
	}
	return p.fakeClient.Send(context.Background(), e, text, file)
}

func TestRunPanicIsIsolated(t *testing.T) {
	client := panicClient{newFakeClient()}
	o := newTestOrchestrator(client, &recordingSleeper{})

	out := o.Run(context.Background(), []Channel{
		{Name: "bad", Message: "m"},
		{Name: "good", Message: "m"},
	})
	if out[0].State != StateLoopStopped {
		t.Fatalf("bad = %s", out[0].State)
	}
	if out[1].State != StateDone || out[1].Count != 1 {
		t.Fatalf("good = %+v", out[1])
	}
}

func TestSignOffAppendsThanks(t *testing.T) {
	got := SignOff("join us")
	if !strings.HasPrefix(got, "join us\n") || !strings.HasSuffix(got, "!") {
		t.Fatalf("SignOff = %q", got)
	}
	line := strings.TrimSuffix(strings.TrimPrefix(got, "join us\n"), "!")
	var known bool
	for _, ty := range thankYous {
		if ty == line {
			known = true
		}
	}
	if !known {
		t.Fatalf("unexpected sign-off %q", line)
	}
}
