package config

import (
	"log/slog"
	"time"
)

// Config holds runtime settings for the chat CLI.
type Config struct {
	// ServerEndpointAddr is host:port of the backend gRPC endpoint.
	ServerEndpointAddr string
	// OnlineCheckInterval is the server ping period. It also paces
	// realtime stream reconnects.
	OnlineCheckInterval time.Duration
	// LocalDataDir holds the device database (key pairs, saved session)
	// and downloaded images. Relative paths resolve against the working
	// directory.
	LocalDataDir string
	// LogLevel filters the diagnostic log written to stderr.
	LogLevel slog.Level
}

func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.OnlineCheckInterval = 3 * time.Second
	c.LocalDataDir = "gophchat-data"
	c.LogLevel = slog.LevelWarn
}

// LoadConfig layers defaults, the JSON file, the environment and flags, in
// that order. Invalid input panics.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
