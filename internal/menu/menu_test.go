package menu

import (
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"castbot/pkg/tgui"
)

func markup(t *testing.T, r Rendered) *tele.ReplyMarkup {
	t.Helper()
	if r.Opt == nil || r.Opt.ReplyMarkupAdapter == nil {
		return nil
	}
	rm, ok := r.Opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	if !ok {
		t.Fatalf("unexpected markup type %T", r.Opt.ReplyMarkupAdapter)
	}
	return rm
}

func hasData(rm *tele.ReplyMarkup, data string) bool {
	if rm == nil {
		return false
	}
	for _, row := range rm.InlineKeyboard {
		for _, b := range row {
			if b.Data == data {
				return true
			}
		}
	}
	return false
}

func TestMainBroadcastButtonAdminOnly(t *testing.T) {
	t.Parallel()
	m := Default()
	start := tgui.Data(ScopeBC, ActionStart, "")

	tests := []struct {
		name  string
		admin bool
		want  bool
	}{
		{"admin", true, true},
		{"user", false, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, ok := m.Render(Main, Viewer{FirstName: "Ann", Admin: tt.admin})
			if !ok {
				t.Fatal("main screen missing")
			}
			if got := hasData(markup(t, r), start); got != tt.want {
				t.Fatalf("broadcast button present=%v, want %v", got, tt.want)
			}
		})
	}
}

func TestRenderEscapesName(t *testing.T) {
	t.Parallel()
	r, ok := Default().Render(Main, Viewer{FirstName: "<b>Eve&Co</b>"})
	if !ok {
		t.Fatal("main screen missing")
	}
	if strings.Contains(r.Text, "<b>Eve") {
		t.Fatalf("name not escaped: %q", r.Text)
	}
	if !strings.Contains(r.Text, "&lt;b&gt;Eve&amp;Co&lt;/b&gt;") {
		t.Fatalf("escaped name missing: %q", r.Text)
	}
	if r.Opt == nil || r.Opt.ParseMode != "HTML" {
		t.Fatalf("parse mode = %+v", r.Opt)
	}
}

func TestRenderEmptyNameFallback(t *testing.T) {
	t.Parallel()
	r, _ := Default().Render(Main, Viewer{FirstName: "  "})
	if !strings.Contains(r.Text, "Привет, друг") {
		t.Fatalf("fallback name missing: %q", r.Text)
	}
}

func TestRenderUnknownScreen(t *testing.T) {
	t.Parallel()
	if _, ok := Default().Render(ScreenID("nope"), Viewer{}); ok {
		t.Fatal("unknown screen rendered")
	}
}

func TestLearnCarriesVideo(t *testing.T) {
	t.Parallel()
	r, _ := Default().Render(Learn, Viewer{})
	if r.Video == "" {
		t.Fatal("learn screen has no video")
	}
	if len([]rune(r.Text)) > tgui.MaxCaptionRunes {
		t.Fatalf("caption too long: %d runes", len([]rune(r.Text)))
	}
}

func TestAllCallbackDataValid(t *testing.T) {
	t.Parallel()
	m := Default()
	for id := range m.screens {
		r, _ := m.Render(id, Viewer{Admin: true})
		rm := markup(t, r)
		if rm == nil {
			continue
		}
		for _, row := range rm.InlineKeyboard {
			for _, b := range row {
				if b.URL != "" || b.WebApp != nil {
					continue
				}
				if !tgui.ValidData(b.Data) {
					t.Fatalf("screen %s: invalid callback data %q", id, b.Data)
				}
				scope, action, _, ok := tgui.ParseData(b.Data)
				if !ok {
					t.Fatalf("screen %s: unparsable data %q", id, b.Data)
				}
				if scope == ScopeMenu && !m.Has(ScreenID(action)) {
					t.Fatalf("screen %s links to missing screen %q", id, action)
				}
			}
		}
	}
}

func TestBroadcastStartedStopData(t *testing.T) {
	t.Parallel()
	jobID := "01J9ZQ3W7V0M6K2C5N8P4R1T3X"
	msg := BroadcastStarted(jobID, 3, "Скидка <20%>")
	rm, _ := msg.Opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	if !hasData(rm, tgui.Data(ScopeBC, ActionStop, jobID)) {
		t.Fatal("stop button missing")
	}
	if !strings.Contains(msg.Text, "3") || !strings.Contains(msg.Text, jobID) {
		t.Fatalf("text = %q", msg.Text)
	}
	if !strings.Contains(msg.Text, "Скидка &lt;20%&gt;") {
		t.Fatalf("preview not escaped: %q", msg.Text)
	}
	if msg = BroadcastStarted(jobID, 3, ""); strings.Contains(msg.Text, "Текст") {
		t.Fatalf("empty preview rendered: %q", msg.Text)
	}
}

func TestBroadcastSummary(t *testing.T) {
	t.Parallel()
	msg := BroadcastSummary(Summary{JobID: "j", Total: 3, Delivered: 2, Unreachable: 1, Took: 1500 * time.Millisecond})
	for _, want := range []string{"Рассылка завершена", "Доставлено</b>: 2", "1.5s"} {
		if !strings.Contains(msg.Text, want) {
			t.Fatalf("summary missing %q: %q", want, msg.Text)
		}
	}
	msg = BroadcastSummary(Summary{JobID: "j", Cancelled: true})
	if !strings.Contains(msg.Text, "остановлена") {
		t.Fatalf("cancelled summary: %q", msg.Text)
	}
}
