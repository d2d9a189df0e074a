// Package provider abstracts the managed chat backend the client mirrors
// state from. Delivery is eventual, at least once, and possibly reordered;
// the store treats every implementation as a black box behind ChatClient.
package provider

import (
	"context"
	"time"
)

// HistoryMessage is one entry of a thread's message history. SequenceID is
// transported as a string and parsed by the consumer.
type HistoryMessage struct {
	ID                string    `json:"id"`
	Content           string    `json:"content"`
	SenderID          string    `json:"senderId"`
	SenderDisplayName string    `json:"senderDisplayName"`
	CreatedOn         time.Time `json:"createdOn"`
	SequenceID        string    `json:"sequenceId"`
}

// MessageReceivedEvent is pushed for every delivered message, including the
// sender's own echo.
type MessageReceivedEvent struct {
	ThreadID          string    `json:"threadId"`
	ID                string    `json:"id"`
	Content           string    `json:"content"`
	SenderID          string    `json:"senderId"`
	SenderDisplayName string    `json:"senderDisplayName"`
	CreatedOn         time.Time `json:"createdOn"`
}

// ThreadCreatedEvent is pushed when the user is added to a new thread. The
// payload carries no member or topic detail usable for display; consumers
// refresh their conversation list instead.
type ThreadCreatedEvent struct {
	ThreadID  string    `json:"threadId"`
	CreatedBy string    `json:"createdBy"`
	CreatedOn time.Time `json:"createdOn"`
}

// ChatClient is the connection handle the realtime dispatcher owns. Handlers
// must be registered before StartRealtimeNotifications.
type ChatClient interface {
	StartRealtimeNotifications(ctx context.Context) error
	StopRealtimeNotifications()
	OnMessageReceived(handler func(MessageReceivedEvent))
	OnThreadCreated(handler func(ThreadCreatedEvent))
	ListMessages(ctx context.Context, threadID string) ([]HistoryMessage, error)
	SendMessage(ctx context.Context, threadID, content string) (string, error)
}

// Factory builds a ChatClient for the endpoint and token issued by Init.
// Injected so the store can be tested without a real connection.
type Factory func(endpoint, token string) ChatClient
