package config

import "time"

// Config holds client configuration values.
type Config struct {
	APIBaseURL     string        `mapstructure:"api_base_url" yaml:"api_base_url"`
	WSBaseURL      string        `mapstructure:"ws_base_url" yaml:"ws_base_url"`
	Token          string        `mapstructure:"token" yaml:"token"`
	UserID         int64         `mapstructure:"user_id" yaml:"user_id"`
	UserName       string        `mapstructure:"user_name" yaml:"user_name"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	LogLevel       string        `mapstructure:"log_level" yaml:"log_level"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		APIBaseURL:     "http://localhost:8080",
		WSBaseURL:      "ws://localhost:8080",
		ReconnectDelay: 3 * time.Second,
		LogLevel:       "info",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.APIBaseURL != "" {
		c.APIBaseURL = other.APIBaseURL
	}
	if other.WSBaseURL != "" {
		c.WSBaseURL = other.WSBaseURL
	}
	if other.Token != "" {
		c.Token = other.Token
	}
	if other.UserID != 0 {
		c.UserID = other.UserID
	}
	if other.UserName != "" {
		c.UserName = other.UserName
	}
	if other.ReconnectDelay != 0 {
		c.ReconnectDelay = other.ReconnectDelay
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}
