package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
)

type MessageStoreMock struct {
	mock.Mock
}

func (m *MessageStoreMock) CreateMessage(ctx context.Context, room models.RoomRef, senderID int, content string, replyToID int) (models.Message, error) {
	args := m.Called(ctx, room, senderID, content, replyToID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageStoreMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageStoreMock) FetchMessages(ctx context.Context, room models.RoomRef, beforeID int, limit int) ([]models.Message, error) {
	args := m.Called(ctx, room, beforeID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageStoreMock) AppendDeliveryStatus(ctx context.Context, messageID int, status string) (models.DeliveryStatusRecord, error) {
	args := m.Called(ctx, messageID, status)
	var rec models.DeliveryStatusRecord
	if val := args.Get(0); val != nil {
		rec = val.(models.DeliveryStatusRecord)
	}
	return rec, args.Error(1)
}

func (m *MessageStoreMock) AppendReadStatus(ctx context.Context, messageID int, userID int) (bool, error) {
	args := m.Called(ctx, messageID, userID)
	return args.Bool(0), args.Error(1)
}

type RoomStoreMock struct {
	mock.Mock
}

func (m *RoomStoreMock) GetConversation(ctx context.Context, conversationID int) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *RoomStoreMock) GetGroupChat(ctx context.Context, groupChatID int) (models.GroupChat, error) {
	args := m.Called(ctx, groupChatID)
	var group models.GroupChat
	if val := args.Get(0); val != nil {
		group = val.(models.GroupChat)
	}
	return group, args.Error(1)
}

func (m *RoomStoreMock) IsParticipant(ctx context.Context, conversationID int, userID int) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *RoomStoreMock) IsMember(ctx context.Context, groupChatID int, userID int) (bool, error) {
	args := m.Called(ctx, groupChatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *RoomStoreMock) IsBlocked(ctx context.Context, conversationID int, userID int) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *RoomStoreMock) ListUserRooms(ctx context.Context, userID int) ([]models.RoomKey, error) {
	args := m.Called(ctx, userID)
	var rooms []models.RoomKey
	if val := args.Get(0); val != nil {
		rooms = val.([]models.RoomKey)
	}
	return rooms, args.Error(1)
}

func (m *RoomStoreMock) RoomParticipants(ctx context.Context, room models.RoomRef) ([]int, error) {
	args := m.Called(ctx, room)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	args := m.Called(ctx, routingKey, message, headers)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ repositories.MessageStore = (*MessageStoreMock)(nil)
var _ repositories.RoomStore = (*RoomStoreMock)(nil)
var _ observability.Publisher = (*PublisherMock)(nil)
