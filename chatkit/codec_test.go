package chatkit

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeNewMessage(t *testing.T) {
	raw := []byte(`{"type":"new_message","data":{"id":42,"content":"hi","message_type":"text","room_id":1,"sender_id":7,"sender_username":"alice"}}`)

	ev, err := DecodeFrame(raw)
	require.NoError(t, err)

	msg, ok := ev.(MessageReceived)
	require.True(t, ok, "expected MessageReceived, got %T", ev)
	assert.Equal(t, int64(42), msg.Message.ID)
	assert.Equal(t, "hi", msg.Message.Content)
	assert.Equal(t, MessageText, msg.Message.MessageType)
	assert.Equal(t, "alice", msg.Message.SenderUsername)
}

func TestDecodeUserEvents(t *testing.T) {
	ev, err := DecodeFrame([]byte(`{"type":"user_online","data":{"user_id":7,"username":"alice"}}`))
	require.NoError(t, err)
	online, ok := ev.(UserOnline)
	require.True(t, ok)
	assert.Equal(t, int64(7), online.User.UserID)

	ev, err = DecodeFrame([]byte(`{"type":"user_offline","data":{"user_id":7}}`))
	require.NoError(t, err)
	assert.Equal(t, UserOffline{UserID: 7}, ev)

	ev, err = DecodeFrame([]byte(`{"type":"user_typing","data":{"user_id":7}}`))
	require.NoError(t, err)
	assert.Equal(t, UserTyping{UserID: 7}, ev)

	ev, err = DecodeFrame([]byte(`{"type":"user_stop_typing","data":{"user_id":7}}`))
	require.NoError(t, err)
	assert.Equal(t, UserStoppedTyping{UserID: 7}, ev)
}

func TestDecodeRosterSnapshot(t *testing.T) {
	ev, err := DecodeFrame([]byte(`{"type":"online_users","data":{"users":[{"user_id":1,"username":"a"},{"user_id":2,"username":"b"}]}}`))
	require.NoError(t, err)
	snap, ok := ev.(RosterSnapshot)
	require.True(t, ok)
	require.Len(t, snap.Users, 2)

	// Missing users field defaults to an empty roster.
	ev, err = DecodeFrame([]byte(`{"type":"online_users","data":{}}`))
	require.NoError(t, err)
	snap = ev.(RosterSnapshot)
	assert.NotNil(t, snap.Users)
	assert.Empty(t, snap.Users)
}

func TestDecodeServerError(t *testing.T) {
	ev, err := DecodeFrame([]byte(`{"type":"error","data":{"message":"room is closed"}}`))
	require.NoError(t, err)
	assert.Equal(t, ServerError{Message: "room is closed"}, ev)

	ev, err = DecodeFrame([]byte(`{"type":"error","data":{}}`))
	require.NoError(t, err)
	assert.Equal(t, ServerError{Message: "server error"}, ev)
}

func TestDecodeUnknownFrame(t *testing.T) {
	ev, err := DecodeFrame([]byte(`{"type":"room_renamed","data":{}}`))
	assert.Nil(t, ev)

	var unknown *UnknownFrameError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "room_renamed", unknown.FrameType)
}

func TestDecodeMalformedFrame(t *testing.T) {
	ev, err := DecodeFrame([]byte(`{not json`))
	assert.Nil(t, ev)
	require.Error(t, err)
	assert.True(t, errors.Is(err, NewError(ErrorSerialization, "")))
}

func TestEncodeEnvelope(t *testing.T) {
	raw, err := EncodeEnvelope(Envelope{
		Type: envelopeSendMessage,
		Data: SendMessagePayload{Content: "hi", MessageType: MessageText, RoomID: 3},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"send_message","data":{"content":"hi","message_type":"text","room_id":3}}`, string(raw))
}
