package dbmysql

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation is the unordered pairing of two users. Participants are stored
// in the order they were supplied; PairKey is the order-independent key that
// carries the uniqueness constraint.
type Conversation struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	Participant1ID string    `gorm:"column:participant1_id;size:36;not null;index" json:"participant1Id"`
	Participant2ID string    `gorm:"column:participant2_id;size:36;not null;index" json:"participant2Id"`
	PairKey        string    `gorm:"column:pair_key;size:73;not null;uniqueIndex" json:"-"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"createdAt"`
}

func NewConversation(a, b string) *Conversation {
	return &Conversation{
		ID:             uuid.NewString(),
		Participant1ID: a,
		Participant2ID: b,
		PairKey:        PairKey(a, b),
		CreatedAt:      time.Now().UTC(),
	}
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.PairKey == "" {
		c.PairKey = PairKey(c.Participant1ID, c.Participant2ID)
	}
	return nil
}

// HasParticipants reports whether {a, b} is this conversation's pair, in either order.
func (c *Conversation) HasParticipants(a, b string) bool {
	return (c.Participant1ID == a && c.Participant2ID == b) ||
		(c.Participant1ID == b && c.Participant2ID == a)
}

// PairKey returns min(a,b) + ":" + max(a,b).
func PairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + ":" + b
}
