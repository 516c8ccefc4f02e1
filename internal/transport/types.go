package transport

import (
	"context"
	"errors"
)

// ErrRecipientUnreachable marks a send that failed because the recipient can no
// longer be reached at all (bot blocked, account deactivated, chat gone).
// Adapters wrap their platform error with it; any other send error is transient.
var ErrRecipientUnreachable = errors.New("recipient unreachable")

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

// From returns the sender profile of the update (zero value if unknown).
func (u Update) From() Profile {
	switch {
	case u.Message != nil:
		return u.Message.From
	case u.Callback != nil:
		return u.Callback.From
	}
	return Profile{}
}

// Chat returns the chat the update belongs to.
func (u Update) Chat() ChatTarget {
	switch {
	case u.Message != nil:
		return ChatTarget{ChatID: u.Message.ChatID, ThreadID: u.Message.ThreadID}
	case u.Callback != nil:
		return ChatTarget{ChatID: u.Callback.ChatID, ThreadID: u.Callback.ThreadID}
	}
	return ChatTarget{}
}

// Profile is the sender metadata carried by every inbound update.
type Profile struct {
	ID           int64
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
}

type Message struct {
	ID        int
	ChatID    int64
	ThreadID  int // forum topic thread id (0 if none)
	From      Profile
	Text      string
	IsPrivate bool
}

type Callback struct {
	ID        string
	ChatID    int64
	ThreadID  int
	MessageID int
	From      Profile
	Data      string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// Sender is the outbound half of an adapter.
//
// SendText returns nil when the platform accepted the message, an error wrapping
// ErrRecipientUnreachable when the recipient is permanently gone, and any other
// error for failures worth trying again later.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

type Adapter interface {
	Sender

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (Telegram "/" list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}

// VideoSender is an optional interface for adapters that can send a video
// already uploaded to the platform (referenced by file id) with a caption.
type VideoSender interface {
	SendVideo(ctx context.Context, to ChatTarget, fileID, caption string, opt *SendOptions) (MessageRef, error)
}
