package config

import "time"

// Config holds every knob the agent reads at startup.
type Config struct {
	// Remote chat service account.
	Username  string `mapstructure:"username" yaml:"username"`
	Password  string `mapstructure:"password" yaml:"password"`
	AuthToken string `mapstructure:"auth_token" yaml:"auth_token"`

	// Room to join and the single privileged user.
	Room   string `mapstructure:"room" yaml:"room"`
	Master string `mapstructure:"master" yaml:"master"`

	// Remote service endpoints.
	AuthBaseURL string `mapstructure:"auth_base_url" yaml:"auth_base_url"`
	ChatURL     string `mapstructure:"chat_url" yaml:"chat_url"`

	// Command handling.
	CommandPrefix    string `mapstructure:"command_prefix" yaml:"command_prefix"`
	ProtocolRevision int    `mapstructure:"protocol_revision" yaml:"protocol_revision"`
	PluginDir        string `mapstructure:"plugin_dir" yaml:"plugin_dir"`

	// Display color applied after joining, six hex digits.
	Color string `mapstructure:"color" yaml:"color"`

	// Modules holds per-module configuration, keyed by lowercase module name.
	Modules map[string]map[string]any `mapstructure:"modules" yaml:"modules,omitempty"`

	// Outbound pacing.
	MinSendInterval time.Duration `mapstructure:"min_send_interval" yaml:"min_send_interval"`

	// Persistence and operational surface.
	DatabasePath    string        `mapstructure:"database_path" yaml:"database_path"`
	StatusAddr      string        `mapstructure:"status_addr" yaml:"status_addr"`
	LogLevel        string        `mapstructure:"log_level" yaml:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		AuthBaseURL:      "https://chat.example.com",
		ChatURL:          "wss://chat.example.com/ws",
		CommandPrefix:    "!",
		ProtocolRevision: 7,
		MinSendInterval:  time.Second,
		DatabasePath:     "roombot.db",
		StatusAddr:       ":8080",
		LogLevel:         "info",
		ShutdownTimeout:  5 * time.Second,
	}
}
