package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/sebas/icd/internal/banner"
	"github.com/sebas/icd/internal/config"
	"github.com/sebas/icd/internal/daemon"
	"github.com/sebas/icd/internal/logging"
)

func main() {
	cfg := config.Load()

	logging.Init(os.Stdout)
	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))

	d, err := daemon.New(cfg)
	if err != nil {
		slog.Error("icd: failed to build daemon", "error", err)
		os.Exit(1)
	}

	run(d, cfg)
}

func run(d *daemon.Daemon, cfg *config.Config) {
	banner.Print("icd", []banner.ConfigLine{
		{Label: "bind", Value: cfg.BindAddr},
		{Label: "loglevel", Value: cfg.LogLevel},
		{Label: "modules", Value: moduleHostsLine(cfg.ModuleHosts)},
		{Label: "idle timeout", Value: cfg.IdleTimeout.String()},
		{Label: "script timeout", Value: cfg.ScriptTimeout.String()},
		{Label: "shutdown drain", Value: cfg.ShutdownDrainTimeout.String()},
		{Label: "settings root", Value: cfg.SettingsRoot},
	})

	runErr := make(chan error, 1)
	go func() { runErr <- d.Run(context.Background()) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("icd: received signal, shutting down", "signal", sig)
	case err := <-runErr:
		if err != nil {
			slog.Error("icd: daemon exited early", "error", err)
			os.Exit(1)
		}
		return
	}

	// Shutdown stops the event loop itself (via its internal stopLoop
	// call) once draining settles, so Run's goroutine above is guaranteed
	// to return on its own; nothing here cancels Run's context directly.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownDrainTimeout+5*time.Second)
	defer cancel()
	if err := d.Shutdown(shutdownCtx); err != nil {
		slog.Error("icd: shutdown error", "error", err)
	}

	select {
	case <-runErr:
	case <-time.After(time.Second):
		slog.Warn("icd: daemon did not report exit within a second of Shutdown returning")
	}
}

func moduleHostsLine(hosts map[string]string) string {
	if len(hosts) == 0 {
		return "none"
	}
	types := make([]string, 0, len(hosts))
	for networkType := range hosts {
		types = append(types, networkType)
	}
	sort.Strings(types)
	parts := make([]string, 0, len(types))
	for _, networkType := range types {
		parts = append(parts, fmt.Sprintf("%s=%s", networkType, hosts[networkType]))
	}
	return strings.Join(parts, ", ")
}
