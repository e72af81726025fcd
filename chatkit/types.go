package chatkit

import (
	"time"

	json "github.com/goccy/go-json"
)

const (
	// DefaultRoomID is the lobby room a fresh session points at.
	DefaultRoomID int64 = 1

	frameNewMessage     = "new_message"
	frameUserOnline     = "user_online"
	frameUserOffline    = "user_offline"
	frameUserTyping     = "user_typing"
	frameUserStopTyping = "user_stop_typing"
	frameOnlineUsers    = "online_users"
	frameError          = "error"

	envelopeJoinRoom    = "join_room"
	envelopeLeaveRoom   = "leave_room"
	envelopeSendMessage = "send_message"
	envelopeTyping      = "typing"
)

// MessageType classifies the content of a ChatMessage.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageEmoji  MessageType = "emoji"
	MessageSystem MessageType = "system"
)

// ChatMessage is a single message as delivered by the server, over the
// socket or from the history endpoint. The log keeps arrival order; ids
// are server-assigned and never re-sorted client-side.
type ChatMessage struct {
	ID             int64       `json:"id"`
	Content        string      `json:"content"`
	MessageType    MessageType `json:"message_type"`
	RoomID         int64       `json:"room_id"`
	SenderID       int64       `json:"sender_id"`
	SenderUsername string      `json:"sender_username,omitempty"`
	SenderAvatar   string      `json:"sender_avatar,omitempty"`
	IsDeleted      bool        `json:"is_deleted"`
	IsSystem       bool        `json:"is_system"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// OnlineUser is one entry in a room's presence roster, keyed by UserID.
type OnlineUser struct {
	UserID      int64      `json:"user_id"`
	Username    string     `json:"username"`
	Nickname    string     `json:"nickname,omitempty"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
}

// PresenceInfo is what the client announces about itself when joining a room.
type PresenceInfo struct {
	Username  string `json:"username"`
	Nickname  string `json:"nickname,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Envelope is the client -> server frame.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// frame is the server -> client shape before the payload is decoded.
type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// JoinRoomPayload subscribes to a room, announcing presence.
type JoinRoomPayload struct {
	RoomID int64        `json:"room_id"`
	User   PresenceInfo `json:"user"`
}

// LeaveRoomPayload unsubscribes from a room.
type LeaveRoomPayload struct {
	RoomID int64 `json:"room_id"`
}

// SendMessagePayload publishes a message to a room.
type SendMessagePayload struct {
	Content     string      `json:"content"`
	MessageType MessageType `json:"message_type"`
	RoomID      int64       `json:"room_id"`
}

// TypingPayload toggles the sender's typing indicator in a room.
type TypingPayload struct {
	RoomID   int64 `json:"room_id"`
	IsTyping bool  `json:"is_typing"`
}

// PrivateRoomInfo is the user-facing support room returned by the backend.
type PrivateRoomInfo struct {
	RoomID    int64    `json:"room_id"`
	RoomName  string   `json:"room_name"`
	AdminInfo ChatPeer `json:"admin_info"`
}

// AdminChatEntry is one row of the admin's conversation list.
type AdminChatEntry struct {
	RoomID          int64     `json:"room_id"`
	UserID          int64     `json:"user_id"`
	Username        string    `json:"username"`
	Nickname        string    `json:"nickname,omitempty"`
	AvatarURL       string    `json:"avatar_url,omitempty"`
	LastMessage     string    `json:"last_message"`
	LastMessageTime time.Time `json:"last_message_time"`
	UnreadCount     int       `json:"unread_count"`
}

// StartedChat is returned when an admin opens a conversation with a user.
type StartedChat struct {
	RoomID   int64    `json:"room_id"`
	UserInfo ChatPeer `json:"user_info"`
}

// ChatPeer identifies the other side of a private conversation.
type ChatPeer struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Nickname  string `json:"nickname,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}
