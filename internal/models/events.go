package models

import "time"

// RealtimeEvent is the frame pushed over the notification websocket.
type RealtimeEvent struct {
	Type    string        `json:"type"`
	Message *MessageEvent `json:"message,omitempty"`
	Thread  *ThreadEvent  `json:"thread,omitempty"`
}

// MessageEvent announces a delivered message, including the sender's echo.
type MessageEvent struct {
	ThreadID          string    `json:"threadId"`
	ID                string    `json:"id"`
	Content           string    `json:"content"`
	SenderID          string    `json:"senderId"`
	SenderDisplayName string    `json:"senderDisplayName"`
	CreatedOn         time.Time `json:"createdOn"`
}

// ThreadEvent announces a thread the receiving user was just added to. It is
// deliberately thin; clients refresh their conversation list to pick up the
// topic and member data.
type ThreadEvent struct {
	ThreadID  string    `json:"threadId"`
	CreatedBy string    `json:"createdBy"`
	CreatedOn time.Time `json:"createdOn"`
}
