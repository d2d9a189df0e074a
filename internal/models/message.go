package models

import "time"

// Message is a single entry of a conversation detail as shown to the UI.
// Messages are kept sorted by SequenceID descending (newest first).
type Message struct {
	ID                string    `json:"id"`
	Text              string    `json:"text"`
	IsMine            bool      `json:"isMine"`
	SenderDisplayName string    `json:"senderDisplayName"`
	CreatedOn         time.Time `json:"createdOn"`
	SequenceID        int64     `json:"sequenceId"`
}

// ThreadMessage is a provider-side message row on the reference server.
// SequenceID is assigned by the server and is monotonic per thread.
type ThreadMessage struct {
	ID                string    `db:"id" json:"id"`
	ThreadID          string    `db:"thread_id" json:"threadId"`
	SenderID          string    `db:"sender_id" json:"senderId"`
	SenderDisplayName string    `db:"sender_display_name" json:"senderDisplayName"`
	Content           string    `db:"content" json:"content"`
	CreatedOn         time.Time `db:"created_on" json:"createdOn"`
	SequenceID        int64     `db:"sequence_id" json:"sequenceId"`
}
