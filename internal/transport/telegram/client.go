// Package telegram implements messenger.Client on the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"raidbot/internal/messenger"
	"raidbot/pkg/logx"
)

const (
	telegramTextLimit    = 4096
	telegramCaptionLimit = 1024
)

type Config struct {
	Token string
	// APIURL overrides https://api.telegram.org (self-hosted Bot API server).
	APIURL string
	// AppName identifies this client in logs.
	AppName string

	// Budget calls per Window are allowed across all channels.
	Budget int
	Window time.Duration

	HTTPTimeout time.Duration

	// LogoutOnExit makes Logout call logOut on the Bot API server. Without it
	// Logout only releases local resources.
	LogoutOnExit bool
}

// Client is safe for concurrent use by channel tasks; every Bot API call
// passes through one shared limiter.
type Client struct {
	cfg     Config
	log     logx.Logger
	bot     *tele.Bot
	http    *http.Client
	limiter *rate.Limiter
}

var _ messenger.Client = (*Client)(nil)

// New creates the bot and verifies the token with getMe.
func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	hc := &http.Client{Timeout: cfg.HTTPTimeout}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		URL:    strings.TrimRight(cfg.APIURL, "/"),
		Client: hc,
	})
	if err != nil {
		return nil, classify(err)
	}
	c := &Client{
		cfg:     cfg,
		log:     log.With(logx.String("comp", "telegram")),
		bot:     b,
		http:    hc,
		limiter: newLimiter(cfg.Budget, cfg.Window),
	}
	c.log.Info("client started",
		logx.String("app", cfg.AppName),
		logx.String("bot", b.Me.Username),
		logx.Int("budget", cfg.Budget),
		logx.Duration("window", cfg.Window),
	)
	return c, nil
}

func newLimiter(budget int, window time.Duration) *rate.Limiter {
	if budget <= 0 || window <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(window/time.Duration(budget)), budget)
}

// chat is the resolved entity handed back to the orchestrator.
type chat struct{ c *tele.Chat }

func (ch chat) Recipient() string { return ch.c.Recipient() }

func (ch chat) String() string {
	if ch.c.Username != "" {
		return "@" + ch.c.Username
	}
	return strconv.FormatInt(ch.c.ID, 10)
}

// lookup accepts "name", "@name", "t.me/name" links and numeric chat ids.
func (c *Client) lookup(ctx context.Context, channel string) (*tele.Chat, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	ref := normalizeChannel(channel)
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		ch, err := c.bot.ChatByID(id)
		return ch, classify(err)
	}
	ch, err := c.bot.ChatByUsername("@" + ref)
	return ch, classify(err)
}

func normalizeChannel(channel string) string {
	s := strings.TrimSpace(channel)
	for _, p := range []string{"https://", "http://"} {
		s = strings.TrimPrefix(s, p)
	}
	for _, p := range []string{"t.me/", "telegram.me/"} {
		s = strings.TrimPrefix(s, p)
	}
	return strings.TrimPrefix(strings.TrimSuffix(s, "/"), "@")
}

// Connect makes sure the channel exists and the bot is a member of it. Bots
// cannot join chats on their own, so a missing membership is a connect failure.
func (c *Client) Connect(ctx context.Context, channel string) error {
	ch, err := c.lookup(ctx, channel)
	if err != nil {
		return fmt.Errorf("telegram: lookup %s: %w", channel, err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	m, err := c.bot.ChatMemberOf(ch, c.bot.Me)
	if err != nil {
		return fmt.Errorf("telegram: membership %s: %w", channel, classify(err))
	}
	switch m.Role {
	case tele.Left, tele.Kicked:
		return fmt.Errorf("telegram: bot is not a member of %s (%s)", channel, m.Role)
	}
	return nil
}

func (c *Client) ResolveEntity(ctx context.Context, channel string) (messenger.Entity, error) {
	ch, err := c.lookup(ctx, channel)
	if err != nil {
		return nil, err
	}
	return chat{c: ch}, nil
}

// Send posts text, or a photo captioned with text when file is set. Text that
// does not fit a caption follows the photo as separate messages.
func (c *Client) Send(ctx context.Context, entity messenger.Entity, text string, file string) error {
	if entity == nil {
		return errors.New("telegram: nil entity")
	}
	to := tele.Recipient(entity)

	rest := text
	if file != "" {
		photo := &tele.Photo{File: tele.FromDisk(file)}
		if len([]rune(text)) <= telegramCaptionLimit {
			photo.Caption = text
			rest = ""
		}
		if err := c.send(ctx, to, photo); err != nil {
			return err
		}
	}
	if rest == "" {
		return nil
	}
	for _, chunk := range splitText(rest, telegramTextLimit) {
		if err := c.send(ctx, to, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, to tele.Recipient, what any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.bot.Send(to, what)
	return classify(err)
}

// SendLog delivers a log line; it bypasses the raid limiter.
func (c *Client) SendLog(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.bot.Send(tele.ChatID(chatID), text)
	return err
}

// Logout ends the session. Server-side logOut only runs with LogoutOnExit.
func (c *Client) Logout(ctx context.Context) error {
	c.http.CloseIdleConnections()
	if !c.cfg.LogoutOnExit {
		c.log.Debug("session released")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.bot.Raw("logOut", map[string]string{})
	if err != nil {
		return fmt.Errorf("telegram: logout: %w", err)
	}
	c.log.Info("logged out")
	return nil
}

// splitText breaks s into chunks of at most limit runes, preferring newline
// boundaries.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
