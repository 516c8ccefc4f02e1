package adapter

import (
	"errors"
	"fmt"
	"net/http"

	tele "gopkg.in/telebot.v4"

	"castbot/internal/transport"
)

// unreachableErrors are Bot API answers after which no message to that chat
// can ever succeed until the user talks to the bot again.
var unreachableErrors = []error{
	tele.ErrBlockedByUser,
	tele.ErrUserIsDeactivated,
	tele.ErrNotStartedByUser,
	tele.ErrKickedFromGroup,
	tele.ErrKickedFromSuperGroup,
	tele.ErrKickedFromChannel,
	tele.ErrChatNotFound,
}

func classifySendError(err error) error {
	if err == nil || !isUnreachable(err) {
		return err
	}
	return fmt.Errorf("%w: %w", transport.ErrRecipientUnreachable, err)
}

func isUnreachable(err error) bool {
	for _, target := range unreachableErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	var te *tele.Error
	if errors.As(err, &te) && te.Code == http.StatusForbidden {
		return true
	}
	return false
}
