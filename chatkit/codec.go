package chatkit

import (
	json "github.com/goccy/go-json"
)

// Event is the closed set of inbound frame variants. Frames are decoded
// and validated here, at the boundary, so the rest of the session only
// ever sees typed events.
type Event interface {
	frameType() string
}

// MessageReceived carries a new message for the active room.
type MessageReceived struct {
	Message ChatMessage
}

// UserOnline announces a user entering the room roster.
type UserOnline struct {
	User OnlineUser
}

// UserOffline announces a user leaving the room roster.
type UserOffline struct {
	UserID int64
}

// UserTyping marks a user as currently typing.
type UserTyping struct {
	UserID int64
}

// UserStoppedTyping clears a user's typing indicator.
type UserStoppedTyping struct {
	UserID int64
}

// RosterSnapshot replaces the entire roster.
type RosterSnapshot struct {
	Users []OnlineUser
}

// ServerError surfaces an error frame sent by the server.
type ServerError struct {
	Message string
}

func (MessageReceived) frameType() string   { return frameNewMessage }
func (UserOnline) frameType() string        { return frameUserOnline }
func (UserOffline) frameType() string       { return frameUserOffline }
func (UserTyping) frameType() string        { return frameUserTyping }
func (UserStoppedTyping) frameType() string { return frameUserStopTyping }
func (RosterSnapshot) frameType() string    { return frameOnlineUsers }
func (ServerError) frameType() string       { return frameError }

// UnknownFrameError reports a frame type outside the recognized set.
// Such frames are logged and dropped without touching session state.
type UnknownFrameError struct {
	FrameType string
}

func (e *UnknownFrameError) Error() string {
	return "unknown frame type: " + e.FrameType
}

// DecodeFrame parses a raw inbound frame into its Event variant.
// Malformed payloads return a serialization error; unrecognized types
// return *UnknownFrameError.
func DecodeFrame(raw []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, WrapError(ErrorSerialization, "malformed frame", err)
	}

	switch f.Type {
	case frameNewMessage:
		var msg ChatMessage
		if err := decodePayload(f.Data, &msg); err != nil {
			return nil, WrapError(ErrorSerialization, "malformed new_message payload", err)
		}
		return MessageReceived{Message: msg}, nil

	case frameUserOnline:
		var user OnlineUser
		if err := decodePayload(f.Data, &user); err != nil {
			return nil, WrapError(ErrorSerialization, "malformed user_online payload", err)
		}
		return UserOnline{User: user}, nil

	case frameUserOffline, frameUserTyping, frameUserStopTyping:
		var p struct {
			UserID int64 `json:"user_id"`
		}
		if err := decodePayload(f.Data, &p); err != nil {
			return nil, WrapError(ErrorSerialization, "malformed "+f.Type+" payload", err)
		}
		switch f.Type {
		case frameUserOffline:
			return UserOffline{UserID: p.UserID}, nil
		case frameUserTyping:
			return UserTyping{UserID: p.UserID}, nil
		default:
			return UserStoppedTyping{UserID: p.UserID}, nil
		}

	case frameOnlineUsers:
		var p struct {
			Users []OnlineUser `json:"users"`
		}
		if err := decodePayload(f.Data, &p); err != nil {
			return nil, WrapError(ErrorSerialization, "malformed online_users payload", err)
		}
		// A missing users field replaces the roster with an empty one.
		if p.Users == nil {
			p.Users = []OnlineUser{}
		}
		return RosterSnapshot{Users: p.Users}, nil

	case frameError:
		var p struct {
			Message string `json:"message"`
		}
		if err := decodePayload(f.Data, &p); err != nil {
			return nil, WrapError(ErrorSerialization, "malformed error payload", err)
		}
		if p.Message == "" {
			p.Message = "server error"
		}
		return ServerError{Message: p.Message}, nil

	default:
		return nil, &UnknownFrameError{FrameType: f.Type}
	}
}

// EncodeEnvelope serializes an outbound envelope to a JSON text frame.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, WrapError(ErrorSerialization, "encode envelope", err)
	}
	return raw, nil
}

func decodePayload(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
