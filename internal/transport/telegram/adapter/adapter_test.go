package adapter

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	"castbot/internal/transport"
)

func TestClassifySendError(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name        string
		err         error
		unreachable bool
	}{
		{"blocked", tele.ErrBlockedByUser, true},
		{"deactivated", tele.ErrUserIsDeactivated, true},
		{"chat not found", tele.ErrChatNotFound, true},
		{"kicked from group", tele.ErrKickedFromGroup, true},
		{"wrapped blocked", fmt.Errorf("send: %w", tele.ErrBlockedByUser), true},
		{"unknown 403", &tele.Error{Code: 403, Description: "Forbidden: something new"}, true},
		{"bad request", &tele.Error{Code: 400, Description: "Bad Request: message is too long"}, false},
		{"network", errors.New("dial tcp: i/o timeout"), false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := classifySendError(tc.err)
			if errors.Is(got, transport.ErrRecipientUnreachable) != tc.unreachable {
				t.Fatalf("classify(%v) unreachable=%v, want %v", tc.err, !tc.unreachable, tc.unreachable)
			}
			if !errors.Is(got, tc.err) {
				t.Fatalf("classified error must keep the cause")
			}
		})
	}
	if classifySendError(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}

func TestSplitTelegramText(t *testing.T) {
	t.Parallel()
	if got := splitTelegramText("short", 10, ""); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short text: %q", got)
	}

	long := strings.Repeat("абвгд", 2000) // 10000 runes
	chunks := splitTelegramText(long, 4000, "")
	if len(chunks) != 3 {
		t.Fatalf("chunks=%d", len(chunks))
	}
	if strings.Join(chunks, "") != long {
		t.Fatalf("chunks do not reassemble")
	}
	for _, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 4000 {
			t.Fatalf("chunk too long: %d", n)
		}
	}

	lines := strings.Repeat("line of text\n", 10)
	chunks = splitTelegramText(lines, 40, "")
	for _, c := range chunks {
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk keeps boundary newline: %q", c)
		}
	}

	html := strings.Repeat("x", 30) + "<b>bold</b>"
	chunks = splitTelegramText(html, 32, "HTML")
	if chunks[0] != strings.Repeat("x", 30) {
		t.Fatalf("split inside a tag: %q", chunks)
	}
}
