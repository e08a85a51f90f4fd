package main

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "DEEP_RESEARCH"

const (
	transportStdIO = "stdio"
	transportSSE   = "sse"
)

type config struct {
	Transport string
	Addr      string
	BaseURL   string
	LogLevel  string
	LogFormat string
}

func bindFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("config", "", "config file (yaml, toml or json)")
	flags.String("transport", transportStdIO, "transport to serve on: stdio or sse")
	flags.String("addr", "127.0.0.1:8080", "listen address of the sse transport")
	flags.String("base-url", "", "public base URL of the sse transport, derived from addr when empty")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", "text", "log format: text or json")
}

// loadConfig resolves the configuration from flags, DEEP_RESEARCH_* environment variables
// and the optional config file, in that order of precedence.
func loadConfig(cmd *cobra.Command) (config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return config{}, fmt.Errorf("failed to bind flags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := config{
		Transport: strings.ToLower(v.GetString("transport")),
		Addr:      v.GetString("addr"),
		BaseURL:   strings.TrimSuffix(v.GetString("base-url"), "/"),
		LogLevel:  v.GetString("log-level"),
		LogFormat: strings.ToLower(v.GetString("log-format")),
	}

	switch cfg.Transport {
	case transportStdIO, transportSSE:
	default:
		return config{}, fmt.Errorf("unknown transport %q", cfg.Transport)
	}

	if cfg.Transport == transportSSE && cfg.BaseURL == "" {
		host, port, err := net.SplitHostPort(cfg.Addr)
		if err != nil {
			return config{}, fmt.Errorf("invalid addr %q: %w", cfg.Addr, err)
		}
		if host == "" {
			host = "localhost"
		}
		cfg.BaseURL = "http://" + net.JoinHostPort(host, port)
	}

	return cfg, nil
}

// newLogger builds the process logger. It writes to w, never to the protocol stream.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}
