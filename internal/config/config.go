package config

import "time"

// Config holds client configuration values.
type Config struct {
	ServerURL     string        `mapstructure:"server_url" yaml:"server_url"`
	APIBaseURL    string        `mapstructure:"api_base_url" yaml:"api_base_url"`
	LogLevel      string        `mapstructure:"log_level" yaml:"log_level"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	DrainInterval time.Duration `mapstructure:"drain_interval" yaml:"drain_interval"`
	RefreshGrace  time.Duration `mapstructure:"refresh_grace" yaml:"refresh_grace"`
}

// Default returns configuration with reasonable starter defaults.
// DrainInterval is the move queue cadence; RefreshGrace is the delay before a
// deferred room_info or join request, giving the server time to settle.
func Default() Config {
	return Config{
		ServerURL:     "ws://localhost:8081/global_ws",
		APIBaseURL:    "http://localhost:8081",
		LogLevel:      "info",
		DialTimeout:   10 * time.Second,
		WriteTimeout:  5 * time.Second,
		DrainInterval: 500 * time.Millisecond,
		RefreshGrace:  100 * time.Millisecond,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.ServerURL != "" {
		c.ServerURL = other.ServerURL
	}
	if other.APIBaseURL != "" {
		c.APIBaseURL = other.APIBaseURL
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DialTimeout != 0 {
		c.DialTimeout = other.DialTimeout
	}
	if other.WriteTimeout != 0 {
		c.WriteTimeout = other.WriteTimeout
	}
	if other.DrainInterval != 0 {
		c.DrainInterval = other.DrainInterval
	}
	if other.RefreshGrace != 0 {
		c.RefreshGrace = other.RefreshGrace
	}
}
