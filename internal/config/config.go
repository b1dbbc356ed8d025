// Package config loads the chat engine's serializable configuration: the
// HTTP bind address, which State store kind to construct, and every
// tunable named in the spec's external-interfaces table. Hooks
// (onConnect, onStart, onClose, before/after hooks) are Go values and are
// wired in code by pkg/chatservice, not loaded here.
package config

import (
	"time"

	"github.com/concord-chat/concord/internal/logging"
)

// Config is the application configuration.
type Config struct {
	Server  ServerConfig   `json:"server" yaml:"server"`
	State   StateConfig    `json:"state" yaml:"state"`
	Chat    ChatConfig     `json:"chat" yaml:"chat"`
	Logging logging.Config `json:"logging" yaml:"logging"`
}

// ServerConfig is the HTTP bind configuration for the websocket upgrade
// endpoint and health check.
type ServerConfig struct {
	Host         string        `json:"host" yaml:"host"`
	Port         int           `json:"port" yaml:"port"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// StateConfig selects and configures the State store implementation.
type StateConfig struct {
	// Kind is the registry tag passed to state.New: "memory" or "redis".
	Kind     string `json:"kind" yaml:"kind"`
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
}

// ChatConfig carries every tunable named in the spec's external
// interfaces table.
type ChatConfig struct {
	CloseTimeout             time.Duration `json:"close_timeout" yaml:"close_timeout"`
	EnableAccessListsUpdates bool          `json:"enable_access_lists_updates" yaml:"enable_access_lists_updates"`
	EnableDirectMessages     bool          `json:"enable_direct_messages" yaml:"enable_direct_messages"`
	EnableRoomsManagement    bool          `json:"enable_rooms_management" yaml:"enable_rooms_management"`
	EnableUserlistUpdates    bool          `json:"enable_userlist_updates" yaml:"enable_userlist_updates"`
	HistoryMaxGetMessages    int           `json:"history_max_get_messages" yaml:"history_max_get_messages"`
	HistoryMaxMessages       int           `json:"history_max_messages" yaml:"history_max_messages"`
	UseRawErrorObjects       bool          `json:"use_raw_error_objects" yaml:"use_raw_error_objects"`
	BusAckTimeout            time.Duration `json:"bus_ack_timeout" yaml:"bus_ack_timeout"`
	LockTTL                  time.Duration `json:"lock_ttl" yaml:"lock_ttl"`
}

// Default returns the default configuration. HistoryMaxGetMessages=100,
// HistoryMaxMessages=10000 resolves the spec's open question on which of
// the two conflicting defaults observed in the source applies to which
// tunable (see DESIGN.md).
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "localhost",
			Port:         3000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		State: StateConfig{
			Kind: "memory",
		},
		Chat: ChatConfig{
			CloseTimeout:             5 * time.Second,
			EnableAccessListsUpdates: true,
			EnableDirectMessages:     true,
			EnableRoomsManagement:    true,
			EnableUserlistUpdates:    true,
			HistoryMaxGetMessages:    100,
			HistoryMaxMessages:       10000,
			UseRawErrorObjects:       false,
			BusAckTimeout:            3 * time.Second,
			LockTTL:                  5 * time.Second,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate validates the configuration, rejecting combinations that
// cannot correspond to a running service before it starts.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return &Error{Field: "server.port", Message: "invalid port number"}
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return &Error{Field: "server.*_timeout", Message: "timeout cannot be negative"}
	}
	if c.State.Kind == "" {
		return &Error{Field: "state.kind", Message: "must name a store kind"}
	}
	if c.Chat.HistoryMaxGetMessages <= 0 {
		return &Error{Field: "chat.history_max_get_messages", Message: "must be positive"}
	}
	if c.Chat.HistoryMaxMessages <= 0 {
		return &Error{Field: "chat.history_max_messages", Message: "must be positive"}
	}
	if c.Chat.HistoryMaxGetMessages > c.Chat.HistoryMaxMessages {
		return &Error{Field: "chat.history_max_get_messages", Message: "cannot exceed history_max_messages"}
	}
	if c.Chat.LockTTL <= 0 {
		return &Error{Field: "chat.lock_ttl", Message: "must be positive"}
	}
	if c.Chat.BusAckTimeout <= 0 {
		return &Error{Field: "chat.bus_ack_timeout", Message: "must be positive"}
	}
	return nil
}

// Error represents a configuration error.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
