package chatkit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("CHATKIT_HOST", "chat.example.com:443")
	t.Setenv("CHATKIT_SECURE", "true")
	t.Setenv("CHATKIT_RECONNECT_BACKOFF", "1s")
	t.Setenv("CHATKIT_MAX_RECONNECT_ATTEMPTS", "3")
	t.Setenv("CHATKIT_TYPING_EXPIRY", "5s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "chat.example.com:443", cfg.Host)
	assert.True(t, cfg.Secure)
	assert.Equal(t, time.Second, cfg.ReconnectBackoff)
	assert.Equal(t, 3, cfg.MaxReconnectAttempts)
	assert.Equal(t, 5*time.Second, cfg.TypingExpiry)
	// Untouched fields keep their defaults.
	assert.Equal(t, 10*time.Second, cfg.HandshakeTimeout)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Setenv("CHATKIT_MAX_RECONNECT_ATTEMPTS", "-2")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.ErrorIs(t, err, NewError(ErrorInvalidConfig, ""))
}

func TestValidateRequiresHost(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = ""
	require.Error(t, cfg.Validate())
}

func TestWebsocketURL(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t,
		"ws://localhost:8000/api/v1/chat/ws?room_id=1&token=abc",
		cfg.websocketURL("abc", 1))

	cfg.Host = "chat.example.com"
	cfg.Secure = true
	assert.Equal(t,
		"wss://chat.example.com/api/v1/chat/ws?room_id=9&token=a+b%2Bc",
		cfg.websocketURL("a b+c", 9), "token is url-encoded")
}
