package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestWithFieldsAreApplied(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "DEBUG").With(String("comp", "raid"))
	log.Info("sending", String("channel", "general"), Int("count", 2))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal log line: %v (%q)", err, buf.String())
	}
	if m["comp"] != "raid" || m["channel"] != "general" {
		t.Fatalf("unexpected fields: %v", m)
	}
	if m["count"].(float64) != 2 {
		t.Fatalf("count = %v, want 2", m["count"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "WARN")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info line written at WARN level: %q", buf.String())
	}
	log.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn line missing: %q", buf.String())
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero Logger should report IsZero")
	}
	l.Error("nothing happens")
}

func TestFormatTelegramJSON(t *testing.T) {
	got := formatTelegramJSON([]byte(`{"level":"warn","message":"flood wait","channel":"general","time":"x"}`))
	want := "[WARN] flood wait\n- channel=general"
	if got != want {
		t.Fatalf("formatTelegramJSON = %q, want %q", got, want)
	}
}

func TestParseLevelDefault(t *testing.T) {
	if got := parseLevel("bogus", LevelInfo); got != LevelInfo {
		t.Fatalf("parseLevel = %v, want info", got)
	}
	if got := parseLevel(" warning ", LevelInfo); got != LevelWarn {
		t.Fatalf("parseLevel = %v, want warn", got)
	}
}
