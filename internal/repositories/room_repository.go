package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrGroupChatNotFound    = errors.New("group chat not found")
)

// RoomStore is the membership side of the persistence gateway: which rooms a
// user belongs to, who participates in a room, and the access checks that
// gate a connection.
type RoomStore interface {
	GetConversation(ctx context.Context, conversationID int) (models.Conversation, error)
	GetGroupChat(ctx context.Context, groupChatID int) (models.GroupChat, error)
	IsParticipant(ctx context.Context, conversationID int, userID int) (bool, error)
	IsMember(ctx context.Context, groupChatID int, userID int) (bool, error)
	IsBlocked(ctx context.Context, conversationID int, userID int) (bool, error)
	ListUserRooms(ctx context.Context, userID int) ([]models.RoomKey, error)
	RoomParticipants(ctx context.Context, room models.RoomRef) ([]int, error)
}

// RoomRepo is a sqlx-backed RoomStore.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// GetConversation fetches a conversation by id.
func (r *RoomRepo) GetConversation(ctx context.Context, conversationID int) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT id, organization_id, is_active, created_at, updated_at
        FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// GetGroupChat fetches a group chat by id.
func (r *RoomRepo) GetGroupChat(ctx context.Context, groupChatID int) (models.GroupChat, error) {
	var group models.GroupChat
	err := r.db.GetContext(ctx, &group, `SELECT id, name, organization_id, created_by_id, is_active, created_at, updated_at
        FROM group_chats WHERE id=$1`, groupChatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.GroupChat{}, ErrGroupChatNotFound
	}
	return group, err
}

// IsParticipant checks whether the user belongs to the conversation.
func (r *RoomRepo) IsParticipant(ctx context.Context, conversationID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM conversation_participants
        WHERE conversation_id=$1 AND user_id=$2)`, conversationID, userID)
	return exists, err
}

// IsMember checks whether the user belongs to the group chat.
func (r *RoomRepo) IsMember(ctx context.Context, groupChatID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM group_chat_members
        WHERE group_chat_id=$1 AND user_id=$2)`, groupChatID, userID)
	return exists, err
}

// IsBlocked reports whether any other participant of the conversation has
// blocked the user within the conversation's organization.
func (r *RoomRepo) IsBlocked(ctx context.Context, conversationID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(
        SELECT 1 FROM user_blocks ub
        JOIN conversations c ON c.id = $1 AND c.organization_id = ub.organization_id
        JOIN conversation_participants cp ON cp.conversation_id = c.id AND cp.user_id = ub.blocker_id
        WHERE ub.blocked_id = $2 AND ub.blocker_id <> $2)`, conversationID, userID)
	return exists, err
}

// ListUserRooms enumerates the fan-out rooms the user belongs to: one per
// conversation plus one per group chat. The private inbox is not stored.
func (r *RoomRepo) ListUserRooms(ctx context.Context, userID int) ([]models.RoomKey, error) {
	var convIDs []int
	if err := r.db.SelectContext(ctx, &convIDs, `SELECT cp.conversation_id FROM conversation_participants cp
        JOIN conversations c ON c.id = cp.conversation_id AND c.is_active
        WHERE cp.user_id=$1 ORDER BY cp.conversation_id`, userID); err != nil {
		return nil, err
	}

	var groupIDs []int
	if err := r.db.SelectContext(ctx, &groupIDs, `SELECT gm.group_chat_id FROM group_chat_members gm
        JOIN group_chats g ON g.id = gm.group_chat_id AND g.is_active
        WHERE gm.user_id=$1 ORDER BY gm.group_chat_id`, userID); err != nil {
		return nil, err
	}

	rooms := make([]models.RoomKey, 0, len(convIDs)+len(groupIDs))
	for _, id := range convIDs {
		rooms = append(rooms, models.ConversationRoom(id))
	}
	for _, id := range groupIDs {
		rooms = append(rooms, models.GroupRoom(id))
	}
	return rooms, nil
}

// RoomParticipants returns the user ids participating in the referenced room.
func (r *RoomRepo) RoomParticipants(ctx context.Context, room models.RoomRef) ([]int, error) {
	if err := room.Validate(); err != nil {
		return nil, err
	}

	var ids []int
	if room.ConversationID > 0 {
		err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM conversation_participants
            WHERE conversation_id=$1 ORDER BY user_id`, room.ConversationID)
		return ids, err
	}
	err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM group_chat_members
        WHERE group_chat_id=$1 ORDER BY user_id`, room.GroupChatID)
	return ids, err
}
