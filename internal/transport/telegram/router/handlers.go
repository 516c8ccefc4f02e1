package router

import (
	"context"
	"errors"
	"time"

	"castbot/internal/menu"
	"castbot/internal/services/broadcast"
	"castbot/internal/transport"
	"castbot/pkg/logx"
	"castbot/pkg/tgui"
)

const summaryTimeout = 15 * time.Second

func (r *Router) reply(text string) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		req.Reply(ctx, text)
		return nil
	}
}

// screen renders a static screen. A screen with a video goes out as a video
// with caption when the adapter can do that, and as text otherwise.
func (r *Router) screen(id menu.ScreenID) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		out, ok := r.d.Menu.Render(id, menu.Viewer{FirstName: req.From.FirstName, Admin: req.Admin})
		if !ok {
			req.Reply(ctx, menu.TextHint)
			return nil
		}
		if vs, ok := r.d.Adapter.(transport.VideoSender); ok && out.Video != "" {
			_, err := vs.SendVideo(ctx, req.Chat, out.Video, out.Text, out.Opt)
			if err == nil {
				return nil
			}
			req.Logger.Warn("send video failed, falling back to text", logx.Err(err))
		}
		req.Send(ctx, tgui.Message{Text: out.Text, Opt: out.Opt})
		return nil
	}
}

func (r *Router) handleAskBroadcast(ctx context.Context, req *Request) error {
	req.Send(ctx, menu.AskBroadcast(r.d.AwaitTimeout))
	return nil
}

func (r *Router) handleBroadcastText(ctx context.Context, req *Request) error {
	text := ""
	if req.Update.Message != nil {
		text = req.Update.Message.Text
	}
	chat := req.Chat
	log := req.Logger
	st, err := r.d.Broadcast.Submit(ctx, broadcast.Request{
		Text:      text,
		Initiator: req.From.ID,
		OnFinish: func(st broadcast.JobStatus) {
			sctx, cancel := context.WithTimeout(context.Background(), summaryTimeout)
			defer cancel()
			msg := menu.BroadcastSummary(summaryOf(st))
			if _, err := msg.Send(sctx, r.d.Adapter, chat); err != nil {
				log.Warn("broadcast summary not sent", logx.String("job", st.ID), logx.Err(err))
			}
		},
	})
	switch {
	case err == nil:
		req.Send(ctx, menu.BroadcastStarted(st.ID, st.Total, st.Preview))
		return nil
	case errors.Is(err, broadcast.ErrNoRecipients):
		req.Reply(ctx, menu.TextNoSubscribers)
		return nil
	case errors.Is(err, broadcast.ErrBusy):
		req.Reply(ctx, menu.TextBusy)
		return nil
	case errors.Is(err, broadcast.ErrEmptyText):
		req.Reply(ctx, menu.TextEmptyText)
		return nil
	default:
		req.Reply(ctx, menu.TextUnavailable)
		return err
	}
}

func (r *Router) handleStatus(ctx context.Context, req *Request) error {
	if !req.Admin {
		req.Reply(ctx, menu.TextDenied)
		return nil
	}
	stats, err := r.d.Store.Stats(ctx)
	if err != nil {
		req.Reply(ctx, menu.TextUnavailable)
		return err
	}
	s := menu.Status{Total: stats.Total, Subscribed: stats.Subscribed}
	if last, ok := r.d.Broadcast.Last(); ok {
		sum := summaryOf(last)
		s.Last = &sum
		s.Running = last.Running()
		s.Preview = last.Preview
	}
	req.Send(ctx, menu.StatusScreen(s))
	return nil
}

// handleStop cancels the job named in the callback payload, or the running
// job for the command form.
func (r *Router) handleStop(ctx context.Context, req *Request) error {
	if !req.Admin {
		req.Reply(ctx, menu.TextDenied)
		return nil
	}
	var ok bool
	if req.Payload != "" {
		ok = r.d.Broadcast.Cancel(req.Payload)
	} else {
		_, ok = r.d.Broadcast.CancelCurrent()
	}
	if ok {
		req.Reply(ctx, menu.TextStopping)
	} else {
		req.Reply(ctx, menu.TextNothingToStop)
	}
	return nil
}

func summaryOf(st broadcast.JobStatus) menu.Summary {
	return menu.Summary{
		JobID:       st.ID,
		Cancelled:   st.State == broadcast.StateCancelled,
		Total:       st.Total,
		Delivered:   st.Delivered,
		Unreachable: st.Unreachable,
		Transient:   st.Transient,
		Skipped:     st.Skipped,
		Took:        st.Took(time.Now()),
	}
}
