package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomRefValidate(t *testing.T) {
	assert.NoError(t, RoomRef{ConversationID: 1}.Validate())
	assert.NoError(t, RoomRef{GroupChatID: 2}.Validate())

	assert.ErrorIs(t, RoomRef{}.Validate(), ErrInvalidRoomRef)
	assert.ErrorIs(t, RoomRef{ConversationID: 1, GroupChatID: 2}.Validate(), ErrInvalidRoomRef)
}

func TestRoomKeyConstruction(t *testing.T) {
	assert.Equal(t, RoomKey("conversation:7"), ConversationRoom(7))
	assert.Equal(t, RoomKey("group:8"), GroupRoom(8))
	assert.Equal(t, RoomKey("user:9"), UserInbox(9))

	assert.True(t, UserInbox(9).IsInbox())
	assert.False(t, ConversationRoom(7).IsInbox())
	assert.False(t, GroupRoom(8).IsInbox())
}

func TestRoomRefKeyRoundTrip(t *testing.T) {
	ref := RoomRef{ConversationID: 3}
	got, err := ref.Key().Ref()
	require.NoError(t, err)
	assert.Equal(t, ref, got)

	ref = RoomRef{GroupChatID: 4}
	got, err = ref.Key().Ref()
	require.NoError(t, err)
	assert.Equal(t, ref, got)
}

func TestRoomKeyRefRejectsNonChatKeys(t *testing.T) {
	_, err := UserInbox(1).Ref()
	assert.ErrorIs(t, err, ErrInvalidRoomRef)

	_, err = RoomKey("garbage").Ref()
	assert.ErrorIs(t, err, ErrInvalidRoomRef)

	_, err = RoomKey("conversation:zero").Ref()
	assert.ErrorIs(t, err, ErrInvalidRoomRef)

	_, err = RoomKey("conversation:0").Ref()
	assert.ErrorIs(t, err, ErrInvalidRoomRef)
}

func TestValidStatus(t *testing.T) {
	for _, s := range []string{StatusSending, StatusSent, StatusDelivered, StatusRead, StatusFailed} {
		assert.True(t, ValidStatus(s), s)
	}
	assert.False(t, ValidStatus(""))
	assert.False(t, ValidStatus("archived"))
}
