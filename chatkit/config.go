package chatkit

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix is stripped from environment variables when loading config,
// e.g. CHATKIT_HOST -> host.
const envPrefix = "CHATKIT_"

// chatSocketPath is the websocket endpoint on the backend.
const chatSocketPath = "/api/v1/chat/ws"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config controls how the session connects and reconnects.
type Config struct {
	// Host is the backend host:port the socket dials.
	Host string `koanf:"host" validate:"required"`

	// Secure selects wss:// over ws://.
	Secure bool `koanf:"secure"`

	// HandshakeTimeout bounds the websocket dial. 0 disables it.
	HandshakeTimeout time.Duration `koanf:"handshake_timeout" validate:"min=0"`

	// ReadTimeout bounds a single read. 0 disables it; chat sessions
	// idle between messages, so the default leaves it off.
	ReadTimeout time.Duration `koanf:"read_timeout" validate:"min=0"`

	// WriteTimeout bounds a single write. 0 disables it.
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"min=0"`

	// MaxReconnectAttempts caps automatic reconnects after abnormal
	// closures. Once exhausted the session surfaces a terminal error.
	MaxReconnectAttempts int `koanf:"max_reconnect_attempts" validate:"min=0"`

	// ReconnectBackoff is the linear backoff step: attempt n waits
	// n * ReconnectBackoff before redialing.
	ReconnectBackoff time.Duration `koanf:"reconnect_backoff" validate:"min=0"`

	// TypingExpiry, when positive, drops a typing indicator that was
	// never followed by a stop event. 0 keeps parity with the server
	// protocol, which has no expiry.
	TypingExpiry time.Duration `koanf:"typing_expiry" validate:"min=0"`
}

// DefaultConfig returns sensible defaults pointed at a local backend.
func DefaultConfig() Config {
	return Config{
		Host:                 "localhost:8000",
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         10 * time.Second,
		MaxReconnectAttempts: 5,
		ReconnectBackoff:     3 * time.Second,
	}
}

// LoadConfig layers CHATKIT_* environment variables over DefaultConfig
// and validates the result.
func LoadConfig() (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return Config{}, WrapError(ErrorInvalidConfig, "load defaults", err)
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, WrapError(ErrorInvalidConfig, "load environment", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, WrapError(ErrorInvalidConfig, "unmarshal configuration", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the config against its constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return WrapError(ErrorInvalidConfig, "invalid configuration", err)
	}
	return nil
}

// websocketURL builds the connect URL: scheme from Secure, token and
// room id as query parameters.
func (c Config) websocketURL(token string, roomID int64) string {
	scheme := "ws"
	if c.Secure {
		scheme = "wss"
	}
	q := url.Values{}
	q.Set("token", token)
	q.Set("room_id", strconv.FormatInt(roomID, 10))
	u := url.URL{
		Scheme:   scheme,
		Host:     c.Host,
		Path:     chatSocketPath,
		RawQuery: q.Encode(),
	}
	return u.String()
}
