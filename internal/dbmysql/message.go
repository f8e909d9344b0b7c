package dbmysql

import (
	"time"
)

type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Content        string    `gorm:"column:content;type:text;not null" json:"content"`
	SenderID       string    `gorm:"column:sender_id;size:36;not null;index" json:"senderId"`
	ReceiverID     string    `gorm:"column:receiver_id;size:36;not null;index" json:"receiverId"`
	ConversationID string    `gorm:"column:conversation_id;size:36;not null;index:idx_conversation_created,priority:1" json:"conversationId"`
	CreatedAt      time.Time `gorm:"column:created_at;index:idx_conversation_created,priority:2" json:"createdAt"`

	Sender   *Identity `gorm:"-" json:"sender,omitempty"`
	Receiver *Identity `gorm:"-" json:"receiver,omitempty"`
}

// Before reports whether m sorts ahead of other: createdAt first, id breaks ties.
func (m *Message) Before(other *Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}
