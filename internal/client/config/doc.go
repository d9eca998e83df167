// Package config loads runtime configuration for the chat CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Environment variables (see parseEnv), optionally loaded from the dotenv
//     file given with -env (default ./.env).
//  4. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   address:port of the backend gRPC endpoint
//	-i value    online status check interval ("10" seconds or "1m")
//	-l string   local data directory
//	-v level    log level: debug, info, warn, error
//
// Environment
//
//	GOPHCHAT_SERVER_ADDR, GOPHCHAT_ONLINE_CHECK_INTERVAL ("3s"),
//	GOPHCHAT_LOCAL_DATA_DIR, GOPHCHAT_LOG_LEVEL
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "3s" or integer nanoseconds:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "online_check_interval": "3s",
//	  "local_data_dir": "gophchat-data",
//	  "log_level": "info"
//	}
package config
