package logx

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestFormatTelegramJSON(t *testing.T) {
	t.Parallel()
	line := []byte(`{"level":"warn","time":"2026-01-01T00:00:00Z","message":"send failed","comp":"broadcast","chat_id":42}`)
	got := formatTelegramJSON(line)
	if !strings.HasPrefix(got, "[WARN] send failed") {
		t.Fatalf("unexpected head: %q", got)
	}
	if !strings.Contains(got, "- chat_id=42") || !strings.Contains(got, "- comp=broadcast") {
		t.Fatalf("missing fields: %q", got)
	}
	if strings.Index(got, "chat_id") > strings.Index(got, "comp") {
		t.Fatalf("fields not sorted: %q", got)
	}
	if strings.Contains(got, "time=") {
		t.Fatalf("time should be dropped: %q", got)
	}
}

func TestFormatTelegramRawFallback(t *testing.T) {
	t.Parallel()
	if got := formatTelegramJSON([]byte("  plain text \n")); got != "plain text" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatTelegramCutsOnRuneBoundary(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("ж", telegramMaxRunes+50)
	got := formatTelegramJSON([]byte(long))
	if !utf8.ValidString(got) {
		t.Fatalf("cut produced invalid UTF-8")
	}
	if n := utf8.RuneCountInString(got); n != telegramMaxRunes || !strings.HasSuffix(got, "…") {
		t.Fatalf("runes=%d suffix ok=%v", n, strings.HasSuffix(got, "…"))
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	if parseLevel("warning", LevelInfo) != LevelWarn {
		t.Fatal("warning should map to warn")
	}
	if parseLevel("bogus", LevelError) != LevelError {
		t.Fatal("unknown level should fall back to default")
	}
}
