package notify

import (
	"context"
	"fmt"
	"strings"
)

// Button is an inline action attached to a chat message. Data is echoed back
// by the chat transport when the button is pressed.
type Button struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// Message is one outbound chat message. Text uses the chat platform's HTML subset.
type Message struct {
	ChatID   int64      `json:"chat_id"`
	Text     string     `json:"text"`
	Buttons  [][]Button `json:"buttons,omitempty"`
	PhotoIDs []string   `json:"photo_ids,omitempty"`
}

// Notifier delivers messages to the chat platform.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Callback data prefixes understood by the chat transport.
const (
	ActionReply         = "reply_"
	ActionPing          = "ping_"
	ActionInactiveClose = "inact_yes_"
	ActionInactiveKeep  = "inact_no_"
	ActionShipOption    = "ship_opt_"
	ActionShipMethod    = "ship_meth_"
	ActionReviewStars   = "rev_star_"
	ActionSelectTicket  = "sel_ticket_"
)

const callbackSeparator = "_"

// Callback builds the data string for an action and its arguments.
func Callback(action string, args ...string) string {
	return action + strings.Join(args, callbackSeparator)
}

// ParseCallback splits data into the action prefix and the remainder.
func ParseCallback(data string, actions ...string) (string, string, error) {
	for _, action := range actions {
		if rest, ok := strings.CutPrefix(data, action); ok && rest != "" {
			return action, rest, nil
		}
	}
	return "", "", fmt.Errorf("unrecognised callback %q", data)
}
