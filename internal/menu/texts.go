package menu

import (
	"fmt"
	"time"

	"castbot/pkg/tgui"
)

// Replies used by the router outside of screens.
const (
	TextHint          = "Нажми /menu, чтобы открыть меню 👇"
	TextDenied        = "🚫 Нет доступа"
	TextUnavailable   = "⚠️ Сервис временно недоступен, попробуй чуть позже."
	TextBusy          = "⏳ Рассылка уже идёт, дождись её завершения."
	TextNoSubscribers = "📭 Подписчиков пока нет, рассылать некому."
	TextEmptyText     = "✍️ Текст рассылки пустой, рассылка не запущена."
	TextAwaitCancel   = "Ок, рассылка отменена."
	TextNothingToDo   = "Нечего отменять."
	TextStopping      = "⛔ Останавливаю рассылку, итог придёт отдельным сообщением."
	TextNothingToStop = "Сейчас нет активной рассылки."
	TextBusyTryAgain  = "Бот занят, попробуй ещё раз через пару секунд."
)

// AskBroadcast is the prompt shown after the admin presses broadcast-start.
func AskBroadcast(timeout time.Duration) tgui.Message {
	kb := tgui.NewInline().Row(tgui.Btn("✖️ Отмена", tgui.Data(ScopeBC, ActionCancel, "")))
	b := tgui.New().Line("✍️ Введи текст рассылки одним сообщением:")
	if timeout > 0 {
		b.Line(fmt.Sprintf("Жду %s, потом отменю. /cancel отменит сразу.", humanDuration(timeout)))
	}
	return b.Inline(kb).Build()
}

// BroadcastStarted confirms a submitted job and offers a stop button.
func BroadcastStarted(jobID string, recipients int, preview string) tgui.Message {
	kb := tgui.NewInline().Row(tgui.Btn("⛔ Остановить", tgui.Data(ScopeBC, ActionStop, jobID)))
	b := tgui.New().
		Title("📢", "Рассылка запущена").
		KV("Получателей", fmt.Sprint(recipients))
	if preview != "" {
		b.KV("Текст", preview)
	}
	return b.HTML(tgui.JoinH(" ", tgui.Esc("Задача:"), tgui.Code(jobID))).
		Inline(kb).
		Build()
}

// Summary is the report sent to the admin when a job ends.
type Summary struct {
	JobID       string
	Cancelled   bool
	Total       int
	Delivered   int
	Unreachable int
	Transient   int
	Skipped     int
	Took        time.Duration
}

func BroadcastSummary(s Summary) tgui.Message {
	title := "Рассылка завершена"
	if s.Cancelled {
		title = "Рассылка остановлена"
	}
	return tgui.New().
		Title("✅", title).
		KV("Всего", fmt.Sprint(s.Total)).
		KV("Доставлено", fmt.Sprint(s.Delivered)).
		KV("Отписались (бот недоступен)", fmt.Sprint(s.Unreachable)).
		KV("Временные ошибки", fmt.Sprint(s.Transient)).
		KV("Не отправлено", fmt.Sprint(s.Skipped)).
		KV("Время", humanDuration(s.Took)).
		HTML(tgui.JoinH(" ", tgui.Esc("Задача:"), tgui.Code(s.JobID))).
		Build()
}

// Status is the admin /status screen.
type Status struct {
	Total      int
	Subscribed int
	Last       *Summary
	Running    bool
	Preview    string
}

func StatusScreen(s Status) tgui.Message {
	b := tgui.New().
		Title("📊", "Статус").
		KV("Пользователей", fmt.Sprint(s.Total)).
		KV("Подписаны", fmt.Sprint(s.Subscribed))
	if s.Last == nil {
		return b.Line("Рассылок ещё не было.").Build()
	}
	state := "завершена"
	switch {
	case s.Running:
		state = "идёт"
	case s.Last.Cancelled:
		state = "остановлена"
	}
	b.Blank().
		Title("📢", "Последняя рассылка").
		KV("Состояние", state).
		KV("Доставлено", fmt.Sprintf("%d из %d", s.Last.Delivered, s.Last.Total)).
		KV("Отписались", fmt.Sprint(s.Last.Unreachable)).
		KV("Ошибки", fmt.Sprint(s.Last.Transient))
	if s.Preview != "" {
		b.KV("Текст", s.Preview)
	}
	if s.Running {
		kb := tgui.NewInline().Row(tgui.Btn("⛔ Остановить", tgui.Data(ScopeBC, ActionStop, s.Last.JobID)))
		b.Inline(kb)
	}
	return b.Build()
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Minute:
		return d.Round(time.Second).String()
	case d >= time.Second:
		return d.Round(100 * time.Millisecond).String()
	default:
		return d.Round(time.Millisecond).String()
	}
}
