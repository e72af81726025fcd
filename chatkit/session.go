package chatkit

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/lumeo/chatkit-go/chatkit/internal"
)

// Transport is a single live connection to the chat server, exchanging
// raw JSON text frames.
type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// DialFunc opens a Transport. The default dials a websocket with the
// configured timeouts; tests and embedders may inject their own.
type DialFunc func(ctx context.Context, url string) (Transport, error)

// Session owns one chat connection at a time: room membership, typing,
// presence and a bounded linear-backoff reconnect after abnormal
// closures. State is observable through State(); events additionally
// fan out through the registered callbacks.
type Session struct {
	cfg        Config
	logger     Logger
	id         string
	dial       DialFunc
	history    HistoryAPI
	state      *State
	dispatcher Dispatcher

	mu             sync.Mutex
	conn           Transport
	cancel         context.CancelFunc
	reconnectTimer *time.Timer
	typingTimers   map[int64]*time.Timer
	gen            uint64
	token          string
	roomID         int64
	presence       PresenceInfo

	writeMu sync.Mutex
}

// NewSession constructs a session with the provided config. Use
// DefaultConfig() or LoadConfig() as a starting point.
func NewSession(cfg Config) *Session {
	s := &Session{
		cfg:          cfg,
		logger:       noopLogger{},
		id:           uuid.NewString(),
		state:        NewState(),
		typingTimers: make(map[int64]*time.Timer),
	}
	s.dial = func(ctx context.Context, wsURL string) (Transport, error) {
		return internal.Dial(ctx, wsURL, cfg.HandshakeTimeout, cfg.ReadTimeout, cfg.WriteTimeout)
	}
	return s
}

// SetLogger overrides the logger (optional).
func (s *Session) SetLogger(l Logger) {
	if l != nil {
		s.logger = l
	}
}

// SetDialer overrides the transport factory (optional).
func (s *Session) SetDialer(d DialFunc) {
	if d != nil {
		s.dial = d
	}
}

// SetHistory attaches the REST collaborator used by the fetch operations.
func (s *Session) SetHistory(api HistoryAPI) {
	s.history = api
}

// State returns the session's observable store.
func (s *Session) State() *State {
	return s.state
}

// OnMessage registers a callback for incoming messages.
func (s *Session) OnMessage(fn func(ChatMessage)) { s.dispatcher.SetOnMessage(fn) }

// OnUserOnline registers a callback for roster additions.
func (s *Session) OnUserOnline(fn func(OnlineUser)) { s.dispatcher.SetOnUserOnline(fn) }

// OnUserOffline registers a callback for roster removals.
func (s *Session) OnUserOffline(fn func(int64)) { s.dispatcher.SetOnUserOffline(fn) }

// OnTyping registers a callback for typing indicators.
func (s *Session) OnTyping(fn func(int64)) { s.dispatcher.SetOnTyping(fn) }

// OnStopTyping registers a callback for cleared typing indicators.
func (s *Session) OnStopTyping(fn func(int64)) { s.dispatcher.SetOnStopTyping(fn) }

// OnRoster registers a callback for full roster snapshots.
func (s *Session) OnRoster(fn func([]OnlineUser)) { s.dispatcher.SetOnRoster(fn) }

// OnError registers a callback for surfaced errors.
func (s *Session) OnError(fn func(error)) { s.dispatcher.SetOnError(fn) }

// OnStateChange registers a callback for connection state transitions.
func (s *Session) OnStateChange(fn func(StateEvent)) { s.dispatcher.SetOnStateChange(fn) }

// Connect dials the server and joins roomID, announcing presence. It is
// a no-op when a connection is already up. A dial failure is surfaced
// and also enters the bounded reconnect path.
func (s *Session) Connect(ctx context.Context, token string, roomID int64, presence PresenceInfo) error {
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		s.logger.Debug("connect skipped, already connected", map[string]any{"session_id": s.id})
		return nil
	}
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.token = token
	s.roomID = roomID
	s.presence = presence
	s.mu.Unlock()

	s.state.setRoom(roomID)
	return s.open(ctx)
}

// Disconnect closes the transport, cancels any pending reconnect and
// clears presence and typing state. Idempotent. The message log
// survives until Reset.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	conn := s.conn
	s.conn = nil
	s.gen++
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	s.stopAllTypingTimers()
	s.state.clearPresence()
	s.setStatus(StateDisconnected)
}

// Reset tears the session down and clears all stored state.
func (s *Session) Reset() {
	s.Disconnect()
	s.state.Reset()
}

// SendMessage publishes a message to the current room. An empty type
// defaults to text. Not queued when disconnected: the call fails with a
// surfaced connection-lost error.
func (s *Session) SendMessage(ctx context.Context, content string, msgType MessageType) error {
	if msgType == "" {
		msgType = MessageText
	}
	payload := SendMessagePayload{
		Content:     content,
		MessageType: msgType,
		RoomID:      s.state.CurrentRoom(),
	}
	return s.sendEnvelope(ctx, Envelope{Type: envelopeSendMessage, Data: payload})
}

// SendText publishes a plain text message to the current room.
func (s *Session) SendText(ctx context.Context, content string) error {
	return s.SendMessage(ctx, content, MessageText)
}

// JoinRoom switches the session to roomID, announcing presence.
func (s *Session) JoinRoom(ctx context.Context, roomID int64, presence PresenceInfo) error {
	env := Envelope{Type: envelopeJoinRoom, Data: JoinRoomPayload{RoomID: roomID, User: presence}}
	if err := s.sendEnvelope(ctx, env); err != nil {
		return err
	}
	s.mu.Lock()
	s.roomID = roomID
	s.presence = presence
	s.mu.Unlock()
	s.state.setRoom(roomID)
	return nil
}

// LeaveRoom unsubscribes from roomID.
func (s *Session) LeaveRoom(ctx context.Context, roomID int64) error {
	return s.sendEnvelope(ctx, Envelope{Type: envelopeLeaveRoom, Data: LeaveRoomPayload{RoomID: roomID}})
}

// StartTyping announces that the user is typing in the current room.
func (s *Session) StartTyping(ctx context.Context) error {
	return s.sendTyping(ctx, true)
}

// StopTyping clears the user's typing indicator in the current room.
func (s *Session) StopTyping(ctx context.Context) error {
	return s.sendTyping(ctx, false)
}

func (s *Session) sendTyping(ctx context.Context, isTyping bool) error {
	payload := TypingPayload{RoomID: s.state.CurrentRoom(), IsTyping: isTyping}
	return s.sendEnvelope(ctx, Envelope{Type: envelopeTyping, Data: payload})
}

func (s *Session) open(ctx context.Context) error {
	s.setStatus(StateConnecting)

	s.mu.Lock()
	token, roomID, presence := s.token, s.roomID, s.presence
	s.mu.Unlock()

	conn, err := s.dial(ctx, s.cfg.websocketURL(token, roomID))
	if err != nil {
		cerr := WrapError(ErrorConnectionFailed, "connection failed", err)
		s.state.SetError(cerr)
		s.dispatcher.fireError(cerr)
		s.logger.Warn("dial failed", map[string]any{"session_id": s.id, "error": err.Error()})
		s.scheduleReconnect()
		return cerr
	}

	s.mu.Lock()
	if s.conn != nil {
		// Lost the race against another connect; keep the existing transport.
		s.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s.conn = conn
	s.cancel = cancel
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	s.state.resetAttempts()
	s.state.ClearError()
	s.setStatus(StateConnected)
	s.logger.Info("connected", map[string]any{"session_id": s.id, "room_id": roomID})

	join := Envelope{Type: envelopeJoinRoom, Data: JoinRoomPayload{RoomID: roomID, User: presence}}
	if err := s.writeEnvelope(runCtx, conn, join); err != nil {
		// The read loop observes the broken connection and drives reconnection.
		s.logger.Warn("join_room send failed", map[string]any{"error": err.Error()})
	}

	go s.readLoop(runCtx, conn, gen)
	return nil
}

func (s *Session) readLoop(ctx context.Context, conn Transport, gen uint64) {
	for {
		raw, err := conn.Read(ctx)
		if err != nil {
			if isExpectedDisconnect(ctx, err) {
				return
			}
			s.handleAbnormalClosure(gen, err)
			return
		}
		s.handleFrame(raw)
	}
}

func (s *Session) handleFrame(raw []byte) {
	ev, err := DecodeFrame(raw)
	if err != nil {
		var unknown *UnknownFrameError
		if errors.As(err, &unknown) {
			s.logger.Debug("ignoring unrecognized frame", map[string]any{"type": unknown.FrameType})
		} else {
			s.logger.Warn("dropping malformed frame", map[string]any{"error": err.Error()})
		}
		return
	}
	s.state.apply(ev)
	s.trackTyping(ev)
	s.dispatcher.Dispatch(ev)
}

func (s *Session) handleAbnormalClosure(gen uint64, cause error) {
	s.mu.Lock()
	if gen != s.gen {
		// A newer connection or an explicit disconnect superseded this one.
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.conn = nil
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	cerr := WrapError(ErrorConnectionFailed, "connection failed", cause)
	s.state.SetError(cerr)
	s.dispatcher.fireError(cerr)
	s.logger.Warn("connection closed", map[string]any{"session_id": s.id, "error": cause.Error()})
	s.scheduleReconnect()
}

// scheduleReconnect arms the next linear-backoff attempt, or surfaces
// the terminal connection-lost error once the budget is spent.
func (s *Session) scheduleReconnect() {
	s.setStatus(StateDisconnected)

	if s.state.ReconnectAttempts() >= s.cfg.MaxReconnectAttempts {
		terr := NewError(ErrorConnectionLost, "connection lost, please reload")
		s.state.SetError(terr)
		s.setStatus(StateError)
		s.dispatcher.fireError(terr)
		s.logger.Error("reconnect budget exhausted", map[string]any{
			"session_id": s.id,
			"attempts":   s.cfg.MaxReconnectAttempts,
		})
		return
	}

	attempt := s.state.bumpAttempts()
	delay := time.Duration(attempt) * s.cfg.ReconnectBackoff
	s.setStatus(StateReconnecting)
	s.logger.Info("scheduling reconnect", map[string]any{
		"session_id": s.id,
		"attempt":    attempt,
		"max":        s.cfg.MaxReconnectAttempts,
		"delay":      delay.String(),
	})

	s.mu.Lock()
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
	}
	s.reconnectTimer = time.AfterFunc(delay, s.redial)
	s.mu.Unlock()
}

func (s *Session) redial() {
	s.mu.Lock()
	s.reconnectTimer = nil
	s.mu.Unlock()
	if err := s.open(context.Background()); err != nil {
		s.logger.Warn("reconnect attempt failed", map[string]any{"error": err.Error()})
	}
}

func (s *Session) sendEnvelope(ctx context.Context, env Envelope) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil || s.state.Status() != StateConnected {
		err := NewError(ErrorConnectionLost, "connection lost")
		s.state.SetError(err)
		s.dispatcher.fireError(err)
		return err
	}
	return s.writeEnvelope(ctx, conn, env)
}

func (s *Session) writeEnvelope(ctx context.Context, conn Transport, env Envelope) error {
	raw, err := EncodeEnvelope(env)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.Write(ctx, raw); err != nil {
		werr := WrapError(ErrorConnectionFailed, "send failed", err)
		s.state.SetError(werr)
		s.dispatcher.fireError(werr)
		return werr
	}
	return nil
}

func (s *Session) setStatus(status ConnectionState) {
	old := s.state.setStatus(status)
	if old != status {
		s.dispatcher.fireStateChange(StateEvent{OldState: old, NewState: status})
	}
}

func (s *Session) trackTyping(ev Event) {
	switch e := ev.(type) {
	case UserTyping:
		if s.cfg.TypingExpiry > 0 {
			s.armTypingExpiry(e.UserID)
		}
	case UserStoppedTyping:
		s.stopTypingTimer(e.UserID)
	}
}

func (s *Session) armTypingExpiry(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.typingTimers[userID]; ok {
		t.Stop()
	}
	s.typingTimers[userID] = time.AfterFunc(s.cfg.TypingExpiry, func() {
		s.mu.Lock()
		delete(s.typingTimers, userID)
		s.mu.Unlock()
		s.state.removeTyping(userID)
		s.dispatcher.fireStopTyping(userID)
	})
}

func (s *Session) stopTypingTimer(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.typingTimers[userID]; ok {
		t.Stop()
		delete(s.typingTimers, userID)
	}
}

func (s *Session) stopAllTypingTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.typingTimers {
		t.Stop()
		delete(s.typingTimers, id)
	}
}

func isExpectedDisconnect(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	default:
		return false
	}
}
