package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageStore is the durable side of the persistence gateway: messages,
// delivery-status appends and read receipts. Every call is transactional at
// single-call granularity; callers treat failures as opaque errors.
type MessageStore interface {
	CreateMessage(ctx context.Context, room models.RoomRef, senderID int, content string, replyToID int) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	FetchMessages(ctx context.Context, room models.RoomRef, beforeID int, limit int) ([]models.Message, error)
	AppendDeliveryStatus(ctx context.Context, messageID int, status string) (models.DeliveryStatusRecord, error)
	AppendReadStatus(ctx context.Context, messageID int, userID int) (bool, error)
}

// MessageRepo is a sqlx-backed MessageStore.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message after validating the conversation-xor-group
// invariant. Validation failures are rejected before any write.
func (r *MessageRepo) CreateMessage(ctx context.Context, room models.RoomRef, senderID int, content string, replyToID int) (models.Message, error) {
	if err := room.Validate(); err != nil {
		return models.Message{}, err
	}

	convID := nullInt(room.ConversationID)
	groupID := nullInt(room.GroupChatID)
	replyTo := nullInt(replyToID)

	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (conversation_id, group_chat_id, sender_id, content, reply_to_id)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, conversation_id, group_chat_id, sender_id, content, reply_to_id, is_edited, is_deleted, created_at`,
		convID, groupID, senderID, content, replyTo).StructScan(&msg)
	if err != nil {
		return models.Message{}, err
	}

	// Keep the parent chat's updated_at in step with its newest message.
	if room.ConversationID > 0 {
		_, _ = r.db.ExecContext(ctx, `UPDATE conversations SET updated_at = NOW() WHERE id=$1`, room.ConversationID)
	} else {
		_, _ = r.db.ExecContext(ctx, `UPDATE group_chats SET updated_at = NOW() WHERE id=$1`, room.GroupChatID)
	}
	return msg, nil
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT id, conversation_id, group_chat_id, sender_id, content, reply_to_id, is_edited, is_deleted, created_at
        FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// FetchMessages returns up to limit messages of a room older than beforeID,
// newest first. beforeID <= 0 means "from the latest".
func (r *MessageRepo) FetchMessages(ctx context.Context, room models.RoomRef, beforeID int, limit int) ([]models.Message, error) {
	if err := room.Validate(); err != nil {
		return nil, err
	}

	query := `SELECT id, conversation_id, group_chat_id, sender_id, content, reply_to_id, is_edited, is_deleted, created_at
        FROM messages
        WHERE is_deleted = FALSE
        AND ($1 = 0 OR conversation_id = $1)
        AND ($2 = 0 OR group_chat_id = $2)
        AND ($3 = 0 OR id < $3)
        ORDER BY id DESC
        LIMIT $4`
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, room.ConversationID, room.GroupChatID, beforeID, limit)
	return msgs, err
}

// AppendDeliveryStatus appends one record to the message's status timeline.
func (r *MessageRepo) AppendDeliveryStatus(ctx context.Context, messageID int, status string) (models.DeliveryStatusRecord, error) {
	var rec models.DeliveryStatusRecord
	err := r.db.QueryRowxContext(ctx, `INSERT INTO message_delivery_status (message_id, status)
        VALUES ($1, $2)
        RETURNING id, message_id, status, timestamp`, messageID, status).StructScan(&rec)
	return rec, err
}

// AppendReadStatus records that userID has read the message. Idempotent: a
// repeated call is a no-op and reports false. The sender's own messages never
// get a read receipt.
func (r *MessageRepo) AppendReadStatus(ctx context.Context, messageID int, userID int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO message_read_status (message_id, user_id)
        SELECT id, $2 FROM messages WHERE id=$1 AND sender_id <> $2
        ON CONFLICT (message_id, user_id) DO NOTHING`, messageID, userID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// nullInt maps a zero id to SQL NULL.
func nullInt(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}
