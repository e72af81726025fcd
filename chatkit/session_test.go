package chatkit

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory Transport fed by the test.
type fakeTransport struct {
	mu        sync.Mutex
	writes    [][]byte
	frames    chan any // []byte frames or error to fail the read loop
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		frames: make(chan any, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.closed:
		return nil, net.ErrClosed
	case item := <-f.frames:
		if err, ok := item.(error); ok {
			return nil, err
		}
		return item.([]byte), nil
	}
}

func (f *fakeTransport) Write(_ context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeTransport) push(frame string) { f.frames <- []byte(frame) }
func (f *fakeTransport) fail(err error)    { f.frames <- err }

type sentEnvelope struct {
	Type string `json:"type"`
	Data struct {
		RoomID      int64        `json:"room_id"`
		User        PresenceInfo `json:"user"`
		Content     string       `json:"content"`
		MessageType MessageType  `json:"message_type"`
		IsTyping    bool         `json:"is_typing"`
	} `json:"data"`
}

func (f *fakeTransport) sentEnvelopes(t *testing.T) []sentEnvelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentEnvelope, 0, len(f.writes))
	for _, raw := range f.writes {
		var env sentEnvelope
		require.NoError(t, json.Unmarshal(raw, &env))
		out = append(out, env)
	}
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ReconnectBackoff = time.Millisecond
	return cfg
}

func TestConnectSendsJoinRoom(t *testing.T) {
	ft := newFakeTransport()
	var dialedURL atomic.Value

	s := NewSession(testConfig())
	s.SetDialer(func(_ context.Context, url string) (Transport, error) {
		dialedURL.Store(url)
		return ft, nil
	})
	defer s.Disconnect()

	err := s.Connect(context.Background(), "tok en", 7, PresenceInfo{Username: "alice"})
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8000/api/v1/chat/ws?room_id=7&token=tok+en", dialedURL.Load())
	assert.Equal(t, StateConnected, s.State().Status())
	assert.Equal(t, int64(7), s.State().CurrentRoom())
	assert.Zero(t, s.State().ReconnectAttempts())
	assert.NoError(t, s.State().Err())

	envs := ft.sentEnvelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, "join_room", envs[0].Type)
	assert.Equal(t, int64(7), envs[0].Data.RoomID)
	assert.Equal(t, "alice", envs[0].Data.User.Username)
}

func TestConnectWhileConnectedIsNoop(t *testing.T) {
	var dials atomic.Int32
	s := NewSession(testConfig())
	s.SetDialer(func(context.Context, string) (Transport, error) {
		dials.Add(1)
		return newFakeTransport(), nil
	})
	defer s.Disconnect()

	require.NoError(t, s.Connect(context.Background(), "tok", 1, PresenceInfo{}))
	require.NoError(t, s.Connect(context.Background(), "tok", 1, PresenceInfo{}))
	assert.EqualValues(t, 1, dials.Load())
}

func TestSendMessageWhileDisconnected(t *testing.T) {
	s := NewSession(testConfig())

	err := s.SendText(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, NewError(ErrorConnectionLost, "")))
	assert.Empty(t, s.State().Messages())
	assert.Error(t, s.State().Err())
}

func TestSendMessageEnvelope(t *testing.T) {
	ft := newFakeTransport()
	s := NewSession(testConfig())
	s.SetDialer(func(context.Context, string) (Transport, error) { return ft, nil })
	defer s.Disconnect()

	require.NoError(t, s.Connect(context.Background(), "tok", 3, PresenceInfo{Username: "bob"}))
	require.NoError(t, s.SendMessage(context.Background(), ":wave:", MessageEmoji))
	require.NoError(t, s.StartTyping(context.Background()))
	require.NoError(t, s.StopTyping(context.Background()))
	require.NoError(t, s.LeaveRoom(context.Background(), 3))

	envs := ft.sentEnvelopes(t)
	require.Len(t, envs, 5)

	assert.Equal(t, "send_message", envs[1].Type)
	assert.Equal(t, ":wave:", envs[1].Data.Content)
	assert.Equal(t, MessageEmoji, envs[1].Data.MessageType)
	assert.Equal(t, int64(3), envs[1].Data.RoomID)

	assert.Equal(t, "typing", envs[2].Type)
	assert.True(t, envs[2].Data.IsTyping)
	assert.Equal(t, "typing", envs[3].Type)
	assert.False(t, envs[3].Data.IsTyping)

	assert.Equal(t, "leave_room", envs[4].Type)
	assert.Equal(t, int64(3), envs[4].Data.RoomID)
}

func TestJoinRoomSwitchesCurrentRoom(t *testing.T) {
	ft := newFakeTransport()
	s := NewSession(testConfig())
	s.SetDialer(func(context.Context, string) (Transport, error) { return ft, nil })
	defer s.Disconnect()

	require.NoError(t, s.Connect(context.Background(), "tok", 1, PresenceInfo{Username: "bob"}))
	require.NoError(t, s.JoinRoom(context.Background(), 9, PresenceInfo{Username: "bob"}))
	assert.Equal(t, int64(9), s.State().CurrentRoom())

	require.NoError(t, s.SendText(context.Background(), "hi"))
	envs := ft.sentEnvelopes(t)
	assert.Equal(t, int64(9), envs[len(envs)-1].Data.RoomID)
}

func TestReconnectBudgetExhausted(t *testing.T) {
	var dials atomic.Int32
	s := NewSession(testConfig())
	s.SetDialer(func(context.Context, string) (Transport, error) {
		dials.Add(1)
		return nil, errors.New("dial refused")
	})

	err := s.Connect(context.Background(), "tok", 1, PresenceInfo{})
	require.Error(t, err)

	require.Eventually(t, func() bool {
		return s.State().Status() == StateError
	}, 2*time.Second, 2*time.Millisecond)

	// Initial dial plus the full reconnect budget.
	assert.EqualValues(t, 6, dials.Load())
	assert.True(t, errors.Is(s.State().Err(), NewError(ErrorConnectionLost, "")))

	// No further attempts after the terminal error.
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 6, dials.Load())
}

func TestDisconnectThenConnectSingleTransport(t *testing.T) {
	var (
		mu      sync.Mutex
		created []*fakeTransport
	)
	s := NewSession(testConfig())
	s.SetDialer(func(context.Context, string) (Transport, error) {
		ft := newFakeTransport()
		mu.Lock()
		created = append(created, ft)
		mu.Unlock()
		return ft, nil
	})
	defer s.Disconnect()

	require.NoError(t, s.Connect(context.Background(), "tok", 1, PresenceInfo{}))
	s.Disconnect()
	require.NoError(t, s.Connect(context.Background(), "tok", 1, PresenceInfo{}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, created, 2)
	open := 0
	for _, ft := range created {
		if !ft.isClosed() {
			open++
		}
	}
	assert.Equal(t, 1, open, "exactly one live transport after disconnect+connect")
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	var dials atomic.Int32
	cfg := testConfig()
	cfg.ReconnectBackoff = 20 * time.Millisecond

	s := NewSession(cfg)
	s.SetDialer(func(context.Context, string) (Transport, error) {
		dials.Add(1)
		return nil, errors.New("dial refused")
	})

	_ = s.Connect(context.Background(), "tok", 1, PresenceInfo{})
	require.EqualValues(t, 1, dials.Load())

	s.Disconnect()
	time.Sleep(60 * time.Millisecond)
	assert.EqualValues(t, 1, dials.Load(), "pending reconnect must not fire after disconnect")
	assert.Equal(t, StateDisconnected, s.State().Status())
}

func TestAbnormalClosureReconnects(t *testing.T) {
	var (
		mu      sync.Mutex
		created []*fakeTransport
	)
	s := NewSession(testConfig())
	s.SetDialer(func(context.Context, string) (Transport, error) {
		ft := newFakeTransport()
		mu.Lock()
		created = append(created, ft)
		mu.Unlock()
		return ft, nil
	})
	defer s.Disconnect()

	require.NoError(t, s.Connect(context.Background(), "tok", 4, PresenceInfo{Username: "bob"}))

	mu.Lock()
	first := created[0]
	mu.Unlock()
	first.fail(errors.New("connection reset"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(created) == 2 && s.State().Status() == StateConnected
	}, 2*time.Second, 2*time.Millisecond)

	// Counter resets on the successful reopen; join_room is resent.
	assert.Zero(t, s.State().ReconnectAttempts())
	mu.Lock()
	second := created[1]
	mu.Unlock()
	require.Eventually(t, func() bool {
		return len(second.sentEnvelopes(t)) == 1
	}, time.Second, 2*time.Millisecond)
	envs := second.sentEnvelopes(t)
	assert.Equal(t, "join_room", envs[0].Type)
	assert.Equal(t, int64(4), envs[0].Data.RoomID)
}

func TestServerErrorFrameSurfaced(t *testing.T) {
	ft := newFakeTransport()
	s := NewSession(testConfig())
	s.SetDialer(func(context.Context, string) (Transport, error) { return ft, nil })
	defer s.Disconnect()

	var gotErr atomic.Value
	s.OnError(func(err error) { gotErr.Store(err) })

	require.NoError(t, s.Connect(context.Background(), "tok", 1, PresenceInfo{}))
	ft.push(`{"type":"error","data":{"message":"room is closed"}}`)

	require.Eventually(t, func() bool {
		return s.State().Err() != nil
	}, time.Second, 2*time.Millisecond)
	assert.Contains(t, s.State().Err().Error(), "room is closed")

	err, _ := gotErr.Load().(error)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "room is closed")
}

func TestMalformedFrameDoesNotBreakSession(t *testing.T) {
	ft := newFakeTransport()
	s := NewSession(testConfig())
	s.SetDialer(func(context.Context, string) (Transport, error) { return ft, nil })
	defer s.Disconnect()

	require.NoError(t, s.Connect(context.Background(), "tok", 1, PresenceInfo{}))
	ft.push(`{garbage`)
	ft.push(`{"type":"new_message","data":{"id":1,"content":"still alive"}}`)

	require.Eventually(t, func() bool {
		return len(s.State().Messages()) == 1
	}, time.Second, 2*time.Millisecond)
	assert.Equal(t, StateConnected, s.State().Status())
}

func TestTypingExpiry(t *testing.T) {
	cfg := testConfig()
	cfg.TypingExpiry = 20 * time.Millisecond

	ft := newFakeTransport()
	s := NewSession(cfg)
	s.SetDialer(func(context.Context, string) (Transport, error) { return ft, nil })
	defer s.Disconnect()

	require.NoError(t, s.Connect(context.Background(), "tok", 1, PresenceInfo{}))
	ft.push(`{"type":"user_typing","data":{"user_id":7}}`)

	require.Eventually(t, func() bool {
		return len(s.State().TypingUsers()) == 1
	}, time.Second, 2*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(s.State().TypingUsers()) == 0
	}, time.Second, 2*time.Millisecond, "stuck typing entry should expire")
}

func TestDisconnectClearsPresence(t *testing.T) {
	ft := newFakeTransport()
	s := NewSession(testConfig())
	s.SetDialer(func(context.Context, string) (Transport, error) { return ft, nil })

	require.NoError(t, s.Connect(context.Background(), "tok", 1, PresenceInfo{}))
	ft.push(`{"type":"new_message","data":{"id":1,"content":"hi"}}`)
	ft.push(`{"type":"user_online","data":{"user_id":2,"username":"b"}}`)
	ft.push(`{"type":"user_typing","data":{"user_id":2}}`)

	require.Eventually(t, func() bool {
		return len(s.State().Messages()) == 1 && len(s.State().OnlineUsers()) == 1
	}, time.Second, 2*time.Millisecond)

	s.Disconnect()
	s.Disconnect() // idempotent

	assert.Empty(t, s.State().OnlineUsers())
	assert.Empty(t, s.State().TypingUsers())
	assert.Len(t, s.State().Messages(), 1, "log survives disconnect until Reset")

	s.Reset()
	assert.Empty(t, s.State().Messages())
}
