package dto

import "github.com/spec-kit/orderdesk/internal/notify"

// ChatUpdate is one inbound event from the chat gateway: a message, a photo
// or a button press. Callback is set for button presses only.
type ChatUpdate struct {
	UserID   int64    `json:"user_id"`
	Text     string   `json:"text"`
	PhotoIDs []string `json:"photo_ids"`
	Callback string   `json:"callback"`
}

// ChatReply lists the messages to send back to the sender.
type ChatReply struct {
	Messages []notify.Message `json:"messages"`
}
