package telegram

import (
	"errors"
	"regexp"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	"raidbot/internal/messenger"
)

var (
	floodPattern = regexp.MustCompile(`(?i)(?:retry after|FLOOD_WAIT_)\s*(\d+)`)
	slowPattern  = regexp.MustCompile(`(?i)(?:SLOWMODE_WAIT_|slow mode[^0-9]*)(\d+)`)
)

// classify tags Bot API errors that carry a wait hint. A typed 429 from
// telebot wins; the text patterns cover self-hosted servers and MTProto-style
// codes that reach us as plain errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var fe tele.FloodError
	if errors.As(err, &fe) {
		return messenger.FloodWait(time.Duration(max(fe.RetryAfter, 0))*time.Second, err)
	}
	msg := err.Error()
	if m := slowPattern.FindStringSubmatch(msg); m != nil {
		return messenger.SlowModeWait(seconds(m[1]), err)
	}
	if m := floodPattern.FindStringSubmatch(msg); m != nil {
		return messenger.FloodWait(seconds(m[1]), err)
	}
	return err
}

func seconds(s string) time.Duration {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
