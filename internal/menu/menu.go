// Package menu holds the static screens of the bot and renders them into
// Telegram HTML text plus an inline keyboard.
package menu

import (
	"strings"

	tele "gopkg.in/telebot.v4"

	"castbot/internal/transport"
	"castbot/pkg/tgui"
)

type ScreenID string

const (
	Consent   ScreenID = "consent"
	Declined  ScreenID = "declined"
	Main      ScreenID = "main"
	Learn     ScreenID = "learn"
	Video     ScreenID = "video"
	Character ScreenID = "character"
	Promo     ScreenID = "promo"
)

// Callback data scopes and actions.
const (
	ScopeMenu    = "menu"
	ScopeConsent = "consent"
	ScopeBC      = "bc"

	ActionAgree   = "agree"
	ActionDecline = "decline"
	ActionStart   = "start"
	ActionCancel  = "cancel"
	ActionStop    = "stop"
)

// Button is one inline button. Exactly one of Data, URL or WebApp is set.
type Button struct {
	Text   string
	Data   string
	URL    string
	WebApp string
}

func (b Button) tele() tele.Btn {
	switch {
	case b.URL != "":
		return tgui.URLBtn(b.Text, b.URL)
	case b.WebApp != "":
		return tgui.WebAppBtn(b.Text, b.WebApp)
	default:
		return tgui.Btn(b.Text, b.Data)
	}
}

// Screen is one static screen. Text is HTML; "{name}" is replaced with the
// viewer's escaped first name.
type Screen struct {
	ID    ScreenID
	Text  string
	Video string // optional file id; Text becomes the caption
	Rows  [][]Button
	// AdminRows are appended only for the admin.
	AdminRows [][]Button
}

// Viewer is who the screen is rendered for.
type Viewer struct {
	FirstName string
	Admin     bool
}

// Rendered is a screen ready to send.
type Rendered struct {
	Text  string
	Video string
	Opt   *transport.SendOptions
}

type Menu struct {
	screens map[ScreenID]Screen
}

// New builds a Menu from screens. Later screens with the same id win.
func New(screens ...Screen) *Menu {
	m := &Menu{screens: make(map[ScreenID]Screen, len(screens))}
	for _, s := range screens {
		m.screens[s.ID] = s
	}
	return m
}

func (m *Menu) Has(id ScreenID) bool {
	_, ok := m.screens[id]
	return ok
}

func (m *Menu) Render(id ScreenID, v Viewer) (Rendered, bool) {
	s, ok := m.screens[id]
	if !ok {
		return Rendered{}, false
	}
	name := strings.TrimSpace(v.FirstName)
	if name == "" {
		name = "друг"
	}
	text := strings.ReplaceAll(s.Text, "{name}", tgui.Esc(name).String())

	kb := tgui.NewInline()
	for _, row := range s.Rows {
		kb.Row(buttons(row)...)
	}
	if v.Admin {
		for _, row := range s.AdminRows {
			kb.Row(buttons(row)...)
		}
	}
	b := tgui.New().HTML(tgui.Raw(text))
	if kb.Rows() > 0 {
		b.Inline(kb)
	}
	msg := b.Build()
	return Rendered{Text: msg.Text, Video: s.Video, Opt: msg.Opt}, true
}

func buttons(row []Button) []tele.Btn {
	out := make([]tele.Btn, 0, len(row))
	for _, b := range row {
		out = append(out, b.tele())
	}
	return out
}

// ScreenData is the callback data that opens screen id.
func ScreenData(id ScreenID) string { return tgui.Data(ScopeMenu, string(id), "") }
