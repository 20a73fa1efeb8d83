package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/papercomputeco/ragchat/pkg/transcript"
)

var errNilExchange = errors.New("cannot store nil exchange")

// ValidateExchange checks the fields every driver relies on.
func ValidateExchange(ex *transcript.Exchange) error {
	switch {
	case ex == nil:
		return errNilExchange
	case ex.Assistant.ID == "":
		return errors.New("exchange has no assistant turn ID")
	case ex.ConversationID == "":
		return errors.New("exchange has no conversation ID")
	case !ex.Assistant.State.Terminal():
		return fmt.Errorf("exchange %s is still %s", ex.Assistant.ID, ex.Assistant.State)
	}
	return nil
}

// LoadTranscript rebuilds a conversation's transcript from its stored
// exchanges, so a chat session can continue it.
func LoadTranscript(ctx context.Context, d Driver, conversationID string) (*transcript.Transcript, error) {
	exchanges, err := d.Conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if len(exchanges) == 0 {
		return nil, NotFoundError{ID: conversationID}
	}

	turns := make([]transcript.Turn, 0, 2*len(exchanges))
	for _, ex := range exchanges {
		turns = append(turns, ex.User, ex.Assistant)
	}

	return transcript.Restore(conversationID, turns), nil
}
