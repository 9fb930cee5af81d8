package models

import "time"

type Conversation struct {
	ID                string     `json:"id"`
	ParticipantA      string     `json:"participant_a"`
	ParticipantB      string     `json:"participant_b"`
	LastMessageText   *string    `json:"last_message_text,omitempty"`
	LastMessageSender *string    `json:"last_message_sender,omitempty"`
	LastMessageAt     *time.Time `json:"last_message_at,omitempty"`
	UnreadCountA      int        `json:"-"`
	UnreadCountB      int        `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// OtherParticipant returns the participant that is not userID.
func (c *Conversation) OtherParticipant(userID string) string {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// UnreadFor returns the unread counter belonging to userID.
func (c *Conversation) UnreadFor(userID string) int {
	if c.ParticipantA == userID {
		return c.UnreadCountA
	}
	return c.UnreadCountB
}

type Message struct {
	ID             string     `json:"id"`
	Seq            int64      `json:"-"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	ReceiverID     string     `json:"receiver_id"`
	Content        string     `json:"content"`
	ImageURL       string     `json:"image_url,omitempty"`
	IsRead         bool       `json:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type Presence struct {
	UserID     string    `json:"user_id"`
	IsOnline   bool      `json:"is_online"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

type ConversationSummary struct {
	Conversation
	OtherUser   *User     `json:"other_user,omitempty"`
	Presence    *Presence `json:"presence,omitempty"`
	UnreadCount int       `json:"unread_count"`
}

type MessagePage struct {
	Messages   []Message `json:"messages"`
	NextCursor string    `json:"next_cursor,omitempty"`
}
