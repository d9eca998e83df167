package config

import (
	"fmt"

	"github.com/dmitrijs2005/gophchat/internal/envx"
	"github.com/dmitrijs2005/gophchat/internal/flagx"
)

const (
	EnvServerAddr          = "GOPHCHAT_SERVER_ADDR"
	EnvOnlineCheckInterval = "GOPHCHAT_ONLINE_CHECK_INTERVAL"
	EnvLocalDataDir        = "GOPHCHAT_LOCAL_DATA_DIR"
	EnvLogLevel            = "GOPHCHAT_LOG_LEVEL"
)

func parseEnv(cfg *Config) {
	envFile := flagx.EnvFileFlags()
	if envFile == "" {
		envFile = ".env"
	}
	if err := envx.Load(envFile); err != nil {
		panic(err)
	}

	envx.String(&cfg.ServerEndpointAddr, EnvServerAddr)
	envx.String(&cfg.LocalDataDir, EnvLocalDataDir)
	if err := envx.Duration(&cfg.OnlineCheckInterval, EnvOnlineCheckInterval); err != nil {
		panic(err)
	}

	var level string
	envx.String(&level, EnvLogLevel)
	if level != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(level)); err != nil {
			panic(fmt.Errorf("%s: %w", EnvLogLevel, err))
		}
	}
}
