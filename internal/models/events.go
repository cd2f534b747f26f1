package models

import "time"

// Client actions accepted over the websocket.
const (
	ActionSendMessage     = "send_message"
	ActionTyping          = "typing"
	ActionRead            = "read"
	ActionHeartbeat       = "heartbeat"
	ActionHeartbeatAck    = "heartbeat_ack"
	ActionFetchMessages   = "fetch_messages"
	ActionRequestStatus   = "request_status"
	ActionBroadcastStatus = "broadcast_status"
)

// Server event types sent over the websocket.
const (
	EventChatMessage     = "chat_message"
	EventTyping          = "typing"
	EventRead            = "read"
	EventMessageStatus   = "message.status"
	EventMessageFailed   = "message.failed"
	EventUserStatus      = "user_status"
	EventHeartbeat       = "heartbeat"
	EventMessagesFetched = "messages_fetched"
	EventStatusResponse  = "status_response"
)

// ClientEvent is the tagged inbound record. Only the fields relevant to the
// action are populated; required fields are validated per action and a
// malformed event is dropped without closing the session.
type ClientEvent struct {
	Action         string `json:"action"`
	ConversationID int    `json:"conversation_id,omitempty"`
	GroupChatID    int    `json:"group_id,omitempty"`
	Content        string `json:"content,omitempty"`
	LocalID        string `json:"local_id,omitempty"`
	ReplyTo        int    `json:"reply_to,omitempty"`
	IsTyping       bool   `json:"is_typing,omitempty"`
	MessageIDs     []int  `json:"message_ids,omitempty"`
	BeforeID       int    `json:"before_id,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	Status         string `json:"status,omitempty"`
	Timestamp      string `json:"timestamp,omitempty"`
}

// Room extracts the chat reference carried by the event.
func (e ClientEvent) Room() RoomRef {
	return RoomRef{ConversationID: e.ConversationID, GroupChatID: e.GroupChatID}
}

// ParticipantStatus is one entry of a status_response.
type ParticipantStatus struct {
	UserID     int        `json:"user_id"`
	Online     bool       `json:"online"`
	LastUpdate *time.Time `json:"last_update,omitempty"`
}

// ServerEvent is broadcast through the room registry and written to clients.
type ServerEvent struct {
	Type           string              `json:"type"`
	Message        *Message            `json:"message,omitempty"`
	Messages       []Message           `json:"messages,omitempty"`
	MessageID      int                 `json:"message_id,omitempty"`
	LocalID        string              `json:"local_id,omitempty"`
	UserID         int                 `json:"user_id,omitempty"`
	Username       string              `json:"username,omitempty"`
	IsTyping       bool                `json:"is_typing,omitempty"`
	Status         string              `json:"status,omitempty"`
	ConversationID int                 `json:"conversation_id,omitempty"`
	GroupChatID    int                 `json:"group_id,omitempty"`
	Participants   []ParticipantStatus `json:"participants,omitempty"`
	Error          string              `json:"error,omitempty"`
	Timestamp      string              `json:"timestamp,omitempty"`
}
