// Package router turns Telegram updates into menu screens, admin commands and
// broadcast submissions.
package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"castbot/internal/conversation"
	"castbot/internal/menu"
	"castbot/internal/metrics"
	"castbot/internal/runtime/supervisor"
	"castbot/internal/services/broadcast"
	"castbot/internal/storage"
	"castbot/internal/transport"
	"castbot/pkg/logx"
	"castbot/pkg/tgui"
)

const (
	defaultQueueSize = 256
	defaultTimeout   = 30 * time.Second
)

// Broadcaster is the part of broadcast.Service the router drives.
type Broadcaster interface {
	Submit(ctx context.Context, req broadcast.Request) (broadcast.JobStatus, error)
	Cancel(id string) bool
	CancelCurrent() (string, bool)
	Last() (broadcast.JobStatus, bool)
}

type Deps struct {
	Adapter   transport.Adapter
	Store     storage.Store
	Tracker   *conversation.Tracker
	Broadcast Broadcaster
	Menu      *menu.Menu
	Log       logx.Logger

	// Workers defaults to NumCPU (at least 2).
	Workers   int
	QueueSize int
	// Timeout bounds one handler run.
	Timeout time.Duration
	// AwaitTimeout is only shown in the broadcast prompt.
	AwaitTimeout time.Duration
}

type Request struct {
	Update  transport.Update
	Chat    transport.ChatTarget
	From    transport.Profile
	Command string
	Args    string
	Payload string
	ReqID   string
	Admin   bool

	Sender transport.Sender
	Logger logx.Logger
}

// Reply sends plain text back to the request chat. Errors are logged only.
func (r *Request) Reply(ctx context.Context, text string) {
	r.Send(ctx, tgui.Message{Text: text})
}

func (r *Request) Send(ctx context.Context, msg tgui.Message) {
	if r.Sender == nil {
		return
	}
	if _, err := msg.Send(ctx, r.Sender, r.Chat); err != nil {
		r.Logger.Warn("reply failed", logx.Err(err))
	}
}

type command struct {
	name   string
	desc   string
	admin  bool
	handle HandlerFunc
}

type Router struct {
	d    Deps
	log  logx.Logger
	gate conversation.Gate

	commands []command
	byName   map[string]command

	runMu   sync.Mutex
	running bool
	sup     *supervisor.Supervisor

	jobs chan func()
}

func New(d Deps) *Router {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	if d.Menu == nil {
		d.Menu = menu.Default()
	}
	if d.Timeout <= 0 {
		d.Timeout = defaultTimeout
	}
	if d.QueueSize <= 0 {
		d.QueueSize = defaultQueueSize
	}
	r := &Router{
		d:    d,
		log:  log.With(logx.String("comp", "telegram.router")),
		gate: d.Tracker.Gate(),
		jobs: make(chan func(), d.QueueSize),
	}
	r.commands = []command{
		{name: "start", desc: "Начать", handle: r.screen(menu.Consent)},
		{name: "menu", desc: "Главное меню", handle: r.screen(menu.Main)},
		{name: "status", admin: true, handle: r.handleStatus},
		{name: "stop_broadcast", admin: true, handle: r.handleStop},
	}
	r.byName = make(map[string]command, len(r.commands))
	for _, c := range r.commands {
		r.byName[c.name] = c
	}
	return r
}

// Supervisor returns the worker pool supervisor (nil if not running).
func (r *Router) Supervisor() *supervisor.Supervisor {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if !r.running {
		return nil
	}
	return r.sup
}

func (r *Router) setSupervisor(sup *supervisor.Supervisor, running bool) {
	r.runMu.Lock()
	r.sup = sup
	r.running = running
	r.runMu.Unlock()
}

// tryEnqueue is a panic-safe enqueue helper (handles the jobs channel being closed).
func (r *Router) tryEnqueue(fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
		}
	}()
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

// UpdateMenuCommands publishes the public command list when the adapter
// supports it.
func (r *Router) UpdateMenuCommands(ctx context.Context) error {
	up, ok := r.d.Adapter.(transport.CommandMenuUpdater)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return up.UpdateMenuCommands(ctx, menuCommands(r.commands))
}

// DispatchLoop reads updates until ctx is done or updates is closed. Tracker
// decisions are made here in arrival order; handlers run on a worker pool.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan transport.Update) error {
	workers := r.d.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers < 2 {
			workers = 2
		}
	}

	sup := supervisor.New(ctx,
		supervisor.WithLogger(r.log),
		supervisor.WithCancelOnError(false),
	)
	r.setSupervisor(sup, true)
	r.log.Info("router started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(r.jobs)))

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			// Mark as not running before closing so enqueue can degrade gracefully.
			r.setSupervisor(sup, false)
			close(r.jobs)
		})
	}

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("router.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-r.jobs:
					if !ok {
						return nil
					}
					if job == nil {
						continue
					}
					func() {
						defer func() {
							if rec := recover(); rec != nil {
								r.log.Error("panic in router job", logx.Int("worker", idx), logx.Any("panic", rec), logx.Stack(string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		closeJobs()
		// Wait briefly for workers to drain.
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.setSupervisor(nil, false)
		r.log.Info("router stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.route(ctx, up)
		}
	}
}

func (r *Router) route(ctx context.Context, up transport.Update) {
	switch {
	case up.Kind == transport.UpdateMessage && up.Message != nil:
		if !up.Message.IsPrivate {
			metrics.Updates.WithLabelValues("dropped").Inc()
			return
		}
		metrics.Updates.WithLabelValues("message").Inc()
		r.routeMessage(ctx, up)
	case up.Kind == transport.UpdateCallback && up.Callback != nil:
		metrics.Updates.WithLabelValues("callback").Inc()
		r.routeCallback(ctx, up)
	}
}

func (r *Router) routeMessage(ctx context.Context, up transport.Update) {
	msg := up.Message
	name, args, isCmd := parseCommand(msg.Text)

	// The next message from an awaiting initiator always leaves the awaiting
	// state. Only plain text becomes a broadcast.
	if r.d.Tracker.Consume(msg.From.ID) {
		switch {
		case !isCmd:
			r.enqueue(ctx, up, "broadcast.text", r.handleBroadcastText, "", "")
			return
		case name == "cancel":
			r.enqueue(ctx, up, name, r.reply(menu.TextAwaitCancel), "", "")
			return
		}
	}

	switch {
	case !isCmd:
		r.enqueue(ctx, up, "text", r.reply(menu.TextHint), "", "")
	case name == "broadcast":
		r.beginBroadcast(ctx, up, name)
	case name == "cancel":
		r.enqueue(ctx, up, name, r.reply(menu.TextNothingToDo), "", "")
	default:
		c, ok := r.byName[name]
		if !ok {
			r.enqueue(ctx, up, name, r.reply(menu.TextHint), args, "")
			return
		}
		r.enqueue(ctx, up, c.name, c.handle, args, "")
	}
}

func (r *Router) routeCallback(ctx context.Context, up transport.Update) {
	cb := up.Callback
	scope, action, payload, ok := tgui.ParseData(cb.Data)
	if !ok {
		_ = r.d.Adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	name := "cb:" + scope + ":" + action

	switch scope + ":" + action {
	case menu.ScopeConsent + ":" + menu.ActionAgree:
		r.enqueue(ctx, up, name, r.screen(menu.Main), "", payload)
	case menu.ScopeConsent + ":" + menu.ActionDecline:
		r.enqueue(ctx, up, name, r.screen(menu.Declined), "", payload)
	case menu.ScopeBC + ":" + menu.ActionStart:
		r.beginBroadcast(ctx, up, name)
	case menu.ScopeBC + ":" + menu.ActionCancel:
		text := menu.TextNothingToDo
		if r.d.Tracker.Cancel(cb.From.ID) {
			text = menu.TextAwaitCancel
		}
		r.enqueue(ctx, up, name, r.reply(text), "", payload)
	case menu.ScopeBC + ":" + menu.ActionStop:
		r.enqueue(ctx, up, name, r.handleStop, "", payload)
	default:
		if scope == menu.ScopeMenu && r.d.Menu.Has(menu.ScreenID(action)) {
			r.enqueue(ctx, up, name, r.screen(menu.ScreenID(action)), "", payload)
			return
		}
		_ = r.d.Adapter.AnswerCallback(ctx, cb.ID, "")
	}
}

// beginBroadcast asks the gate on the loop goroutine. A denied initiator keeps
// its state untouched.
func (r *Router) beginBroadcast(ctx context.Context, up transport.Update, name string) {
	from := up.From().ID
	if err := r.d.Tracker.Begin(from); err != nil {
		r.enqueue(ctx, up, name, r.reply(menu.TextDenied), "", "")
		return
	}
	if !r.enqueue(ctx, up, name, r.handleAskBroadcast, "", "") {
		r.d.Tracker.Cancel(from)
	}
}

func (r *Router) enqueue(ctx context.Context, up transport.Update, name string, h HandlerFunc, args, payload string) bool {
	from := up.From()
	chat := up.Chat()
	rid := uuid.NewString()
	req := &Request{
		Update:  up,
		Chat:    chat,
		From:    from,
		Command: name,
		Args:    args,
		Payload: payload,
		ReqID:   rid,
		Admin:   r.gate.IsAuthorized(from.ID),
		Sender:  r.d.Adapter,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from.ID),
			logx.String("cmd", name),
		),
	}

	final := Chain(
		h,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(r.d.Timeout),
		MWRegister(r.d.Store),
	)

	job := func() {
		_ = final(ctx, req)
		if up.Callback != nil {
			// best-effort to stop "loading" UI
			_ = r.d.Adapter.AnswerCallback(ctx, up.Callback.ID, "")
		}
	}
	if r.tryEnqueue(job) {
		return true
	}

	metrics.Updates.WithLabelValues("dropped").Inc()
	r.log.Warn("router queue full", logx.String("cmd", name), logx.Int64("from_id", from.ID))
	if up.Callback != nil {
		_ = r.d.Adapter.AnswerCallback(ctx, up.Callback.ID, menu.TextBusyTryAgain)
	} else {
		_, _ = r.d.Adapter.SendText(ctx, chat, menu.TextBusyTryAgain, nil)
	}
	return false
}

// parseCommand splits "/name@bot args" into name and args.
func parseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return "", "", false
	}
	word, rest, _ := strings.Cut(text[1:], " ")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return "", "", false
	}
	return word, strings.TrimSpace(rest), true
}
