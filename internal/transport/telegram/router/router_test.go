package router

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"castbot/internal/conversation"
	"castbot/internal/menu"
	"castbot/internal/services/broadcast"
	"castbot/internal/storage"
	"castbot/internal/transport"
	"castbot/pkg/logx"
	"castbot/pkg/tgui"
)

const adminID = 1

type sent struct {
	chat int64
	text string
}

type fakeAdapter struct {
	mu       sync.Mutex
	sent     []sent
	answered []string
	blocked  map[int64]bool
}

func (a *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (a *fakeAdapter) Stop(context.Context) error                          { return nil }

func (a *fakeAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.blocked[to.ChatID] {
		return transport.MessageRef{}, fmt.Errorf("%w: bot was blocked by the user", transport.ErrRecipientUnreachable)
	}
	a.sent = append(a.sent, sent{chat: to.ChatID, text: text})
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(a.sent)}, nil
}

func (a *fakeAdapter) AnswerCallback(_ context.Context, id, _ string) error {
	a.mu.Lock()
	a.answered = append(a.answered, id)
	a.mu.Unlock()
	return nil
}

// to returns the texts sent to chat, in order.
func (a *fakeAdapter) to(chat int64) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, s := range a.sent {
		if s.chat == chat {
			out = append(out, s.text)
		}
	}
	return out
}

type harness struct {
	adapter *fakeAdapter
	store   storage.Store
	tracker *conversation.Tracker
	updates chan transport.Update
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	store, err := storage.Open(ctx, storage.Config{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "castbot.db"),
		BusyTimeout: time.Second,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	adapter := &fakeAdapter{blocked: map[int64]bool{}}
	disp := broadcast.NewDispatcher(broadcast.DispatcherConfig{RatePerSec: 1000, Burst: 1, Workers: 1}, adapter, store, nil, logx.Nop())
	svc := broadcast.NewService(broadcast.Config{}, disp, store, broadcast.NewMemoryLock(), nil, logx.Nop(), nil)
	t.Cleanup(func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Close(cctx)
	})

	tracker := conversation.NewTracker(conversation.NewGate(adminID), time.Minute, nil)
	r := New(Deps{
		Adapter:   adapter,
		Store:     store,
		Tracker:   tracker,
		Broadcast: svc,
		Workers:   1,
	})

	h := &harness{adapter: adapter, store: store, tracker: tracker, updates: make(chan transport.Update, 16)}
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = r.DispatchLoop(loopCtx, h.updates)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) text(from int64, text string) {
	h.updates <- transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{
		ChatID:    from,
		From:      transport.Profile{ID: from, FirstName: fmt.Sprintf("user%d", from)},
		Text:      text,
		IsPrivate: true,
	}}
}

func (h *harness) press(from int64, data string) {
	h.updates <- transport.Update{Kind: transport.UpdateCallback, Callback: &transport.Callback{
		ID:     fmt.Sprintf("cb-%d-%s", from, data),
		ChatID: from,
		From:   transport.Profile{ID: from, FirstName: fmt.Sprintf("user%d", from)},
		Data:   data,
	}}
}

// waitSent waits until chat has received a message containing substr.
func (h *harness) waitSent(t *testing.T, chat int64, substr string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, s := range h.adapter.to(chat) {
			if strings.Contains(s, substr) {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("chat %d never got %q; got %q", chat, substr, h.adapter.to(chat))
}

func countContaining(msgs []string, substr string) int {
	n := 0
	for _, m := range msgs {
		if strings.Contains(m, substr) {
			n++
		}
	}
	return n
}

func TestStartRegistersAndShowsConsent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.text(7, "/start")
	h.waitSent(t, 7, "Согласен")

	sub, ok, err := h.store.Get(context.Background(), 7)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if !sub.Subscribed || sub.DisplayName != "user7" {
		t.Fatalf("subscriber = %+v", sub)
	}

	h.press(7, tgui.Data(menu.ScopeConsent, menu.ActionAgree, ""))
	h.waitSent(t, 7, "Привет, user7")
}

func TestNonAdminCannotStartBroadcast(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.press(5, tgui.Data(menu.ScopeBC, menu.ActionStart, ""))
	h.waitSent(t, 5, menu.TextDenied)
	if st := h.tracker.State(5); st != conversation.Idle {
		t.Fatalf("state = %v, want Idle", st)
	}

	h.text(5, "/broadcast")
	h.text(5, "hello everyone")
	h.waitSent(t, 5, menu.TextHint)
	if n := countContaining(h.adapter.to(5), menu.TextDenied); n != 2 {
		t.Fatalf("denials = %d, want 2", n)
	}
	if n := countContaining(h.adapter.to(5), "hello everyone"); n != 0 {
		t.Fatal("non-admin text was broadcast")
	}
}

func TestAdminBroadcastFlow(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	for _, id := range []int64{adminID, 2, 3} {
		h.text(id, "/start")
		h.waitSent(t, id, "Согласен")
	}
	h.adapter.mu.Lock()
	h.adapter.blocked[3] = true
	h.adapter.mu.Unlock()

	h.press(adminID, tgui.Data(menu.ScopeBC, menu.ActionStart, ""))
	h.waitSent(t, adminID, "Введи текст рассылки")
	if st := h.tracker.State(adminID); st != conversation.AwaitingBroadcastText {
		t.Fatalf("state = %v, want Awaiting", st)
	}

	h.text(adminID, "big news")
	h.waitSent(t, adminID, "Рассылка завершена")

	if st := h.tracker.State(adminID); st != conversation.Idle {
		t.Fatalf("state = %v, want Idle", st)
	}
	if n := countContaining(h.adapter.to(2), "big news"); n != 1 {
		t.Fatalf("recipient 2 got %d copies", n)
	}
	if n := countContaining(h.adapter.to(adminID), "big news"); n != 1 {
		t.Fatalf("admin got %d copies", n)
	}
	h.waitSent(t, adminID, "Получателей</b>: 3")
	h.waitSent(t, adminID, "Доставлено</b>: 2")

	sub, ok, err := h.store.Get(context.Background(), 3)
	if err != nil || !ok || sub.Subscribed {
		t.Fatalf("blocked recipient: %+v ok=%v err=%v", sub, ok, err)
	}

	// The next plain text is not a broadcast any more.
	h.text(adminID, "second")
	h.waitSent(t, adminID, menu.TextHint)
	if n := countContaining(h.adapter.to(2), "second"); n != 0 {
		t.Fatal("text after the broadcast was sent to subscribers")
	}
}

func TestAwaitingStateLeftByNextMessage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		next string
		want string
	}{
		{"cancel", "/cancel", menu.TextAwaitCancel},
		{"other command", "/menu", "Привет, user1"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			h.text(2, "/start")
			h.waitSent(t, 2, "Согласен")

			h.text(adminID, "/broadcast")
			h.waitSent(t, adminID, "Введи текст рассылки")
			h.text(adminID, tt.next)
			h.waitSent(t, adminID, tt.want)

			if st := h.tracker.State(adminID); st != conversation.Idle {
				t.Fatalf("state = %v, want Idle", st)
			}
			if n := countContaining(h.adapter.to(2), tt.next); n != 0 {
				t.Fatalf("%q was broadcast", tt.next)
			}
		})
	}
}

func TestAdminCommands(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.text(6, "/status")
	h.waitSent(t, 6, menu.TextDenied)
	h.text(6, "/stop_broadcast")
	h.waitSent(t, 6, menu.TextDenied)

	h.text(adminID, "/status")
	h.waitSent(t, adminID, "Пользователей</b>: 2")
	h.waitSent(t, adminID, "Рассылок ещё не было")

	h.text(adminID, "/stop_broadcast")
	h.waitSent(t, adminID, menu.TextNothingToStop)
}

func TestStoreUnavailable(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	_ = h.store.Close()

	h.text(9, "/start")
	h.waitSent(t, 9, menu.TextUnavailable)
	if n := countContaining(h.adapter.to(9), "Согласен"); n != 0 {
		t.Fatal("handler ran despite unavailable store")
	}
}

func TestGroupMessagesIgnored(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.updates <- transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{
		ChatID: -100, From: transport.Profile{ID: 4}, Text: "/start",
	}}
	h.text(4, "/menu")
	h.waitSent(t, 4, "Привет")
	if got := h.adapter.to(-100); len(got) != 0 {
		t.Fatalf("group got replies: %q", got)
	}
}

func TestCallbacksAreAnswered(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.press(4, menu.ScreenData(menu.Video))
	h.waitSent(t, 4, "NEYROPH")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		h.adapter.mu.Lock()
		n := len(h.adapter.answered)
		h.adapter.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("callback not answered")
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in       string
		name     string
		args     string
		expectOK bool
	}{
		{"/start", "start", "", true},
		{"  /Menu@castbot_bot  ", "menu", "", true},
		{"/status now", "status", "now", true},
		{"hello", "", "", false},
		{"/", "", "", false},
		{"/@bot", "", "", false},
	}
	for _, tt := range tests {
		name, args, ok := parseCommand(tt.in)
		if name != tt.name || args != tt.args || ok != tt.expectOK {
			t.Fatalf("parseCommand(%q) = %q, %q, %v", tt.in, name, args, ok)
		}
	}
}

func TestMenuCommandsHideAdmin(t *testing.T) {
	t.Parallel()
	r := New(Deps{Tracker: conversation.NewTracker(conversation.NewGate(adminID), time.Minute, nil)})
	cmds := menuCommands(r.commands)
	for _, c := range cmds {
		if c.Command == "status" || c.Command == "stop_broadcast" {
			t.Fatalf("admin command %q in public menu", c.Command)
		}
	}
	if len(cmds) != 2 {
		t.Fatalf("menu = %+v", cmds)
	}
}

func TestSanitizeTelegramCommand(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"Stop-Broadcast": "stop_broadcast",
		"  a  b ":        "a_b",
		"9lives":         "cmd_9lives",
		"!!!":            "",
	}
	for in, want := range tests {
		if got := sanitizeTelegramCommand(in); got != want {
			t.Fatalf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}
