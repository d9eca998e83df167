package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/flagx"
)

// parseInterval accepts a Go duration ("1m30s") or a bare number of seconds.
func parseInterval(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	return d, nil
}

// parseFlags applies -a, -i, -l and -v. Other arguments are left to the
// JSON and env loaders.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-i", "-l", "-v"})

	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "server gRPC address")
	fs.StringVar(&cfg.LocalDataDir, "l", cfg.LocalDataDir, "local data directory")
	fs.Func("i", "online check interval (seconds or duration)", func(s string) error {
		d, err := parseInterval(s)
		if err != nil {
			return err
		}
		if d <= 0 {
			return fmt.Errorf("interval must be positive, got %s", s)
		}
		cfg.OnlineCheckInterval = d
		return nil
	})
	fs.TextVar(&cfg.LogLevel, "v", cfg.LogLevel, "log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
