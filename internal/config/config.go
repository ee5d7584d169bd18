// Package config loads icd's process configuration from command-line flags
// and environment variable overrides, in the same precedence order the
// teacher codebase uses for its own signaling server.
package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the daemon's process-wide configuration.
type Config struct {
	// BindAddr is the address the client API HTTP adapter listens on.
	BindAddr string
	// Daemon records the -daemon flag / ICD_DAEMON setting (spec §6 CLI
	// surface). Nothing reads it: the process always runs in the
	// foreground and never detaches.
	Daemon bool
	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// ModuleHosts maps network type to a gRPC address of a remote module
	// host, e.g. "WLAN_INFRA" -> "localhost:9100".
	ModuleHosts map[string]string

	// IdleTimeout is the default per-network-type idle timeout (spec §4.6);
	// IdleTimeoutByType overrides it for specific network types.
	IdleTimeout       time.Duration
	IdleTimeoutByType map[string]time.Duration

	// ScriptTimeout bounds how long a single phase script may run before
	// being canceled and treated as a soft (-1) failure.
	ScriptTimeout time.Duration

	// ShutdownDrainTimeout bounds how long Daemon.Shutdown waits for
	// outstanding requests to reach DISCONNECTED.
	ShutdownDrainTimeout time.Duration

	// SettingsRoot is the conventional root path of the settings tree.
	SettingsRoot string
}

// Load parses flags and applies environment variable overrides. Flags are
// parsed first; a non-empty env var then replaces the field whether the
// flag was left at its default or passed explicitly, matching the
// teacher's own flag-then-getenv precedence.
func Load() *Config {
	cfg := &Config{
		IdleTimeout:          5 * time.Minute,
		IdleTimeoutByType:    map[string]time.Duration{},
		ScriptTimeout:        30 * time.Second,
		ShutdownDrainTimeout: 10 * time.Second,
		SettingsRoot:         "/system/osso/connectivity/IAP",
	}

	flag.StringVar(&cfg.BindAddr, "bind", "127.0.0.1:8080", "client API HTTP adapter bind address")
	flag.BoolVar(&cfg.Daemon, "daemon", false, "accepted for compatibility; the process always runs in the foreground")
	flag.StringVar(&cfg.LogLevel, "loglevel", "info", "log level (debug, info, warn, error)")

	var moduleHosts string
	flag.StringVar(&moduleHosts, "modules", "", "comma-separated type=addr pairs for remote module hosts")

	flag.Parse()

	cfg.ModuleHosts = parseNodeAddresses(moduleHosts)

	if v := os.Getenv("ICD_BIND"); v != "" {
		cfg.BindAddr = v
	}
	if v := os.Getenv("ICD_LOGLEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ICD_DAEMON"); v != "" {
		cfg.Daemon = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("ICD_MODULES"); v != "" {
		if hosts := parseNodeAddresses(v); len(hosts) > 0 {
			cfg.ModuleHosts = hosts
		}
	}
	if v := os.Getenv("ICD_IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.IdleTimeout = d
		}
	}

	return cfg
}

// parseNodeAddresses parses "type0=addr0,type1=addr1" into a map.
func parseNodeAddresses(s string) map[string]string {
	if s == "" {
		return nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return out
}

// IdleTimeoutFor returns the configured idle timeout for a network type,
// falling back to the default.
func (c *Config) IdleTimeoutFor(networkType string) time.Duration {
	if d, ok := c.IdleTimeoutByType[networkType]; ok {
		return d
	}
	return c.IdleTimeout
}

// ParseBool is a small helper mirroring the teacher's env-var parsing style
// for flags that may also be toggled via truthy environment strings.
func ParseBool(s string, fallback bool) bool {
	if s == "" {
		return fallback
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return b
}
