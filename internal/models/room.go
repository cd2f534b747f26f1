package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidRoomRef is returned when a message targets both a conversation and
// a group chat, or neither.
var ErrInvalidRoomRef = errors.New("message must reference exactly one of conversation or group chat")

// RoomKey identifies a fan-out group: a conversation, a group chat, or a
// user's private inbox.
type RoomKey string

// ConversationRoom builds the room key for a one-to-one conversation.
func ConversationRoom(conversationID int) RoomKey {
	return RoomKey(fmt.Sprintf("conversation:%d", conversationID))
}

// GroupRoom builds the room key for a group chat.
func GroupRoom(groupChatID int) RoomKey {
	return RoomKey(fmt.Sprintf("group:%d", groupChatID))
}

// UserInbox builds the private per-user room key used for status echoes.
func UserInbox(userID int) RoomKey {
	return RoomKey(fmt.Sprintf("user:%d", userID))
}

// IsInbox reports whether the key addresses a private inbox room.
func (k RoomKey) IsInbox() bool {
	return strings.HasPrefix(string(k), "user:")
}

// Ref converts a conversation or group room key back into a RoomRef. Inbox
// keys have no backing chat and return ErrInvalidRoomRef.
func (k RoomKey) Ref() (RoomRef, error) {
	parts := strings.SplitN(string(k), ":", 2)
	if len(parts) != 2 {
		return RoomRef{}, ErrInvalidRoomRef
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil || id <= 0 {
		return RoomRef{}, ErrInvalidRoomRef
	}
	switch parts[0] {
	case "conversation":
		return RoomRef{ConversationID: id}, nil
	case "group":
		return RoomRef{GroupChatID: id}, nil
	}
	return RoomRef{}, ErrInvalidRoomRef
}

// RoomRef points a message at the chat it belongs to. Exactly one of the two
// ids must be set.
type RoomRef struct {
	ConversationID int
	GroupChatID    int
}

// Validate enforces the conversation-xor-group invariant.
func (r RoomRef) Validate() error {
	if (r.ConversationID > 0) == (r.GroupChatID > 0) {
		return ErrInvalidRoomRef
	}
	return nil
}

// Key returns the fan-out room key for the referenced chat.
func (r RoomRef) Key() RoomKey {
	if r.ConversationID > 0 {
		return ConversationRoom(r.ConversationID)
	}
	return GroupRoom(r.GroupChatID)
}
