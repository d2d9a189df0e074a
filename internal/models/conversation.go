package models

import "time"

// ChatUser identifies one participant of a conversation.
type ChatUser struct {
	UserID      string `db:"user_id" json:"userId"`
	Email       string `db:"email" json:"email"`
	DisplayName string `db:"display_name" json:"displayName"`
}

// Conversation is the summary row returned by GetConversations. Instances are
// replaced wholesale on every list refresh; only the last-message fields are
// updated in place between refreshes.
type Conversation struct {
	ConversationID          string     `db:"id" json:"conversationId"`
	Topic                   string     `db:"topic" json:"topic"`
	CreatedTime             time.Time  `db:"created_time" json:"createdTime"`
	CreatedByUserID         string     `db:"created_by_user_id" json:"createdByUserId"`
	CreatedByEmail          string     `db:"created_by_email" json:"createdByEmail"`
	InvitedUserID           string     `db:"invited_user_id" json:"invitedUserId"`
	InvitedUserEmail        string     `db:"invited_user_email" json:"invitedUserEmail"`
	Members                 []ChatUser `db:"-" json:"members"`
	LastMessageTime         time.Time  `db:"last_message_time" json:"lastMessageTime"`
	LastMessage             string     `db:"last_message" json:"lastMessage"`
	LastMessageSenderUserID string     `db:"last_message_sender_user_id" json:"lastMessageSenderUserId"`
	LastMessageSenderEmail  string     `db:"last_message_sender_email" json:"lastMessageSenderEmail"`
	Profanity               bool       `db:"profanity" json:"profanity"`
}

// TheirDisplayName derives the other participant's name for a given viewer:
// the creator sees the invited user's email, everyone else sees the creator's.
func (c Conversation) TheirDisplayName(viewerID string) string {
	if c.CreatedByUserID == viewerID {
		return c.InvitedUserEmail
	}
	return c.CreatedByEmail
}

// ConversationDetail is the fully loaded view of one conversation. At most one
// detail per conversation id exists at a time; once built it is only appended
// to by realtime events until the store resets.
type ConversationDetail struct {
	ConversationID   string     `json:"conversationId"`
	Topic            string     `json:"topic"`
	Members          []ChatUser `json:"members"`
	LastMessageTime  time.Time  `json:"lastMessageTime"`
	TheirDisplayName string     `json:"theirDisplayName"`
	Messages         []Message  `json:"messages"`
}
