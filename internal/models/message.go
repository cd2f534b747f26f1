package models

import "time"

// Delivery status values, ordered by lifecycle stage. The timeline is
// append-only; the latest timestamped record wins for display purposes.
const (
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// ValidStatus reports whether s is a recognized delivery status.
func ValidStatus(s string) bool {
	switch s {
	case StatusSending, StatusSent, StatusDelivered, StatusRead, StatusFailed:
		return true
	}
	return false
}

// Message is a durable chat message belonging to exactly one of a
// conversation or a group chat. Nullable columns are pointers so the wire
// form carries plain integers and omits the unused side.
type Message struct {
	ID             int       `db:"id" json:"id"`
	ConversationID *int      `db:"conversation_id" json:"conversation_id,omitempty"`
	GroupChatID    *int      `db:"group_chat_id" json:"group_chat_id,omitempty"`
	SenderID       int       `db:"sender_id" json:"sender_id"`
	Content        string    `db:"content" json:"content"`
	ReplyToID      *int      `db:"reply_to_id" json:"reply_to,omitempty"`
	IsEdited       bool      `db:"is_edited" json:"is_edited"`
	IsDeleted      bool      `db:"is_deleted" json:"is_deleted"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Room returns the reference of the chat this message belongs to.
func (m Message) Room() RoomRef {
	var ref RoomRef
	if m.ConversationID != nil {
		ref.ConversationID = *m.ConversationID
	}
	if m.GroupChatID != nil {
		ref.GroupChatID = *m.GroupChatID
	}
	return ref
}

// DeliveryStatusRecord is one entry in a message's append-only status
// timeline. Records are never mutated. Read receipts live in their own table
// keyed by (message, user); the repository reports them as inserted-or-not
// rather than materializing a struct.
type DeliveryStatusRecord struct {
	ID        int       `db:"id" json:"id"`
	MessageID int       `db:"message_id" json:"message_id"`
	Status    string    `db:"status" json:"status"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
}
