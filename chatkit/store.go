package chatkit

import (
	"sort"
	"sync"
)

// State is the session's observable store: message log, roster, typing
// set, connection status and the loading/error flags shared with REST
// calls. All accessors return copies; mutation happens on the event
// loop driven by the session.
type State struct {
	mu          sync.RWMutex
	messages    []ChatMessage
	roster      []OnlineUser
	typing      map[int64]struct{}
	status      ConnectionState
	currentRoom int64
	attempts    int
	loading     bool
	err         error
}

// NewState returns an empty store pointing at the default room.
func NewState() *State {
	return &State{
		typing:      make(map[int64]struct{}),
		status:      StateDisconnected,
		currentRoom: DefaultRoomID,
	}
}

// Messages returns a copy of the message log in arrival order.
func (s *State) Messages() []ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// OnlineUsers returns a copy of the roster.
func (s *State) OnlineUsers() []OnlineUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]OnlineUser, len(s.roster))
	copy(out, s.roster)
	return out
}

// TypingUsers returns the ids currently typing, sorted for stable output.
func (s *State) TypingUsers() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int64, 0, len(s.typing))
	for id := range s.typing {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Status returns the current connection state.
func (s *State) Status() ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// CurrentRoom returns the room the session is pointed at.
func (s *State) CurrentRoom() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentRoom
}

// ReconnectAttempts returns the number of reconnects tried since the
// last successful open.
func (s *State) ReconnectAttempts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempts
}

// Loading reports whether a REST call is in flight.
func (s *State) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Err returns the current session error, nil when clear.
func (s *State) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// SetLoading toggles the loading flag around async REST calls.
func (s *State) SetLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = loading
}

// SetError fills the session error slot.
func (s *State) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// ClearError empties the session error slot.
func (s *State) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = nil
}

// Reset clears the log, roster, typing set, error slot and points the
// store back at the default room. Connection status is untouched; the
// session resets that through its disconnect path.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.roster = nil
	s.typing = make(map[int64]struct{})
	s.currentRoom = DefaultRoomID
	s.err = nil
}

// apply folds a decoded inbound event into the store.
func (s *State) apply(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch e := ev.(type) {
	case MessageReceived:
		s.messages = append(s.messages, e.Message)
	case UserOnline:
		s.upsertUserLocked(e.User)
	case UserOffline:
		s.removeUserLocked(e.UserID)
	case UserTyping:
		s.typing[e.UserID] = struct{}{}
	case UserStoppedTyping:
		delete(s.typing, e.UserID)
	case RosterSnapshot:
		s.roster = append([]OnlineUser(nil), e.Users...)
	case ServerError:
		s.err = NewError(ErrorServer, e.Message)
	}
}

// upsertUserLocked replaces an existing roster entry in place (keyed by
// user id, preserving position) or appends a new one.
func (s *State) upsertUserLocked(user OnlineUser) {
	for i := range s.roster {
		if s.roster[i].UserID == user.UserID {
			s.roster[i] = user
			return
		}
	}
	s.roster = append(s.roster, user)
}

func (s *State) removeUserLocked(userID int64) {
	for i := range s.roster {
		if s.roster[i].UserID == userID {
			s.roster = append(s.roster[:i], s.roster[i+1:]...)
			return
		}
	}
}

func (s *State) removeTyping(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.typing, userID)
}

// clearPresence drops the roster and typing set; used on disconnect.
// The message log survives until Reset.
func (s *State) clearPresence() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roster = nil
	s.typing = make(map[int64]struct{})
}

func (s *State) setStatus(status ConnectionState) ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.status
	s.status = status
	return old
}

func (s *State) setRoom(roomID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentRoom = roomID
}

func (s *State) replaceMessages(msgs []ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append([]ChatMessage(nil), msgs...)
}

func (s *State) prependMessages(msgs []ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(append([]ChatMessage(nil), msgs...), s.messages...)
}

func (s *State) resetAttempts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = 0
}

// bumpAttempts increments and returns the attempt counter.
func (s *State) bumpAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	return s.attempts
}
