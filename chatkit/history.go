package chatkit

import (
	"context"
	"errors"
)

// HistoryAPI is the REST collaborator the session fetch operations
// delegate to. rest.Client implements it.
type HistoryAPI interface {
	Messages(ctx context.Context, roomID int64, page, pageSize int, beforeID *int64) ([]ChatMessage, error)
	OnlineUsers(ctx context.Context, roomID int64) ([]OnlineUser, error)
	PrivateRoom(ctx context.Context) (*PrivateRoomInfo, error)
	AdminChatList(ctx context.Context) ([]AdminChatEntry, error)
	StartChat(ctx context.Context, userID int64) (*StartedChat, error)
}

// FetchMessages loads a page of history for roomID and merges it into
// the message log: page 1 replaces the log, later pages prepend (older
// messages). The fetched page is also returned. REST failures are
// normalized into the session error slot and the original error is
// returned for local handling.
func (s *Session) FetchMessages(ctx context.Context, roomID int64, page, pageSize int, beforeID *int64) ([]ChatMessage, error) {
	api, err := s.historyAPI()
	if err != nil {
		return nil, err
	}
	s.state.SetLoading(true)
	defer s.state.SetLoading(false)
	s.state.ClearError()

	msgs, err := api.Messages(ctx, roomID, page, pageSize, beforeID)
	if err != nil {
		s.surfaceRESTError(err, "failed to load messages")
		return nil, err
	}
	if page <= 1 {
		s.state.replaceMessages(msgs)
	} else {
		s.state.prependMessages(msgs)
	}
	return msgs, nil
}

// FetchOnlineUsers replaces the roster from a REST snapshot; used for
// the initial render before the socket delivers live presence events.
func (s *Session) FetchOnlineUsers(ctx context.Context, roomID int64) ([]OnlineUser, error) {
	api, err := s.historyAPI()
	if err != nil {
		return nil, err
	}
	users, err := api.OnlineUsers(ctx, roomID)
	if err != nil {
		s.surfaceRESTError(err, "failed to load online users")
		return nil, err
	}
	s.state.apply(RosterSnapshot{Users: users})
	return users, nil
}

// FetchPrivateRoom returns the caller's private support room.
func (s *Session) FetchPrivateRoom(ctx context.Context) (*PrivateRoomInfo, error) {
	api, err := s.historyAPI()
	if err != nil {
		return nil, err
	}
	s.state.SetLoading(true)
	defer s.state.SetLoading(false)
	s.state.ClearError()

	room, err := api.PrivateRoom(ctx)
	if err != nil {
		s.surfaceRESTError(err, "failed to load private room")
		return nil, err
	}
	return room, nil
}

// FetchAdminChatList returns the admin's conversation list.
func (s *Session) FetchAdminChatList(ctx context.Context) ([]AdminChatEntry, error) {
	api, err := s.historyAPI()
	if err != nil {
		return nil, err
	}
	s.state.SetLoading(true)
	defer s.state.SetLoading(false)
	s.state.ClearError()

	list, err := api.AdminChatList(ctx)
	if err != nil {
		s.surfaceRESTError(err, "failed to load chat list")
		return nil, err
	}
	return list, nil
}

// StartChatWithUser opens (or returns) the admin's private room with a user.
func (s *Session) StartChatWithUser(ctx context.Context, userID int64) (*StartedChat, error) {
	api, err := s.historyAPI()
	if err != nil {
		return nil, err
	}
	s.state.SetLoading(true)
	defer s.state.SetLoading(false)
	s.state.ClearError()

	started, err := api.StartChat(ctx, userID)
	if err != nil {
		s.surfaceRESTError(err, "failed to start chat")
		return nil, err
	}
	return started, nil
}

func (s *Session) historyAPI() (HistoryAPI, error) {
	if s.history == nil {
		return nil, NewError(ErrorInvalidConfig, "no REST client configured")
	}
	return s.history, nil
}

// surfaceRESTError maps a REST failure through the fixed status table
// into the session error slot. The caller still returns the original
// error.
func (s *Session) surfaceRESTError(err error, fallback string) {
	msg := fallback
	var se StatusError
	if errors.As(err, &se) {
		msg = MessageForStatus(se.HTTPStatus())
	}
	cerr := WrapError(ErrorRequestFailed, msg, err)
	s.state.SetError(cerr)
	s.dispatcher.fireError(cerr)
	s.logger.Warn("rest call failed", map[string]any{"error": err.Error()})
}
