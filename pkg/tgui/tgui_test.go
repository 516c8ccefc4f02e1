package tgui

import (
	"strings"
	"testing"
)

func TestDataRoundTrip(t *testing.T) {
	t.Parallel()
	cases := []struct {
		scope, action, payload string
	}{
		{"menu", "main", ""},
		{"bc", "stop", "01J9ZX"},
		{"x", "y", "a:b:c"},
	}
	for _, tc := range cases {
		d := Data(tc.scope, tc.action, tc.payload)
		s, a, p, ok := ParseData(d)
		if !ok || s != tc.scope || a != tc.action || p != tc.payload {
			t.Errorf("ParseData(%q)=%q,%q,%q,%v", d, s, a, p, ok)
		}
	}
	for _, bad := range []string{"", "menu", ":x", "menu:"} {
		if _, _, _, ok := ParseData(bad); ok {
			t.Errorf("ParseData(%q) should fail", bad)
		}
	}
	if ValidData(strings.Repeat("a", MaxCallbackDataLen+1)) {
		t.Errorf("oversized data accepted")
	}
}

func TestBuilderEscapesHTML(t *testing.T) {
	t.Parallel()
	m := New().Title("📢", "A <b> test").Line("1 < 2 & 3").KV("who", "<admin>").Build()
	want := "📢 <b>A &lt;b&gt; test</b>\n1 &lt; 2 &amp; 3\n• <b>who</b>: &lt;admin&gt;"
	if m.Text != want {
		t.Fatalf("text=%q\nwant=%q", m.Text, want)
	}
	if m.Opt.ParseMode != "HTML" || !m.Opt.DisablePreview {
		t.Fatalf("opt=%+v", m.Opt)
	}
}

func TestInlineRows(t *testing.T) {
	t.Parallel()
	kb := NewInline().
		Row(Btn("A", Data("menu", "a", ""))).
		Row(URLBtn("Site", "https://example.org"), WebAppBtn("App", "https://example.org/app"))
	if kb.Rows() != 2 {
		t.Fatalf("rows=%d", kb.Rows())
	}
	rm := kb.Markup()
	if len(rm.InlineKeyboard) != 2 || len(rm.InlineKeyboard[1]) != 2 {
		t.Fatalf("keyboard=%+v", rm.InlineKeyboard)
	}
	if rm.InlineKeyboard[1][1].WebApp == nil {
		t.Fatalf("web app button lost")
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"привет мир", 5, "прив…"},
		{"привет", 6, "привет"},
		{"abc", 1, "…"},
		{"", 3, ""},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := TruncRunes(tt.in, tt.n); got != tt.want {
			t.Errorf("TruncRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestPreviewCollapsesWhitespace(t *testing.T) {
	t.Parallel()
	if got := Preview("  Всем\n\nпривет   от <b>студии</b> ", 100); got != "Всем привет от <b>студии</b>" {
		t.Fatalf("Preview = %q", got)
	}
	if got := Preview("один\nдва три", 8); got != "один дв…" {
		t.Fatalf("Preview = %q", got)
	}
}
