// Package logging wires a runtime-adjustable slog handler for the daemon,
// in the same shape as the teacher's internal/logger package: a package
// level level gate plus a minimal custom slog.Handler.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
)

var (
	mu    sync.RWMutex
	level = slog.LevelInfo
)

// ParseLevel parses a level name, defaulting to Info on an unknown string.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel sets the process-wide log level gate.
func SetLevel(l slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

func currentLevel() slog.Level {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// handler is a minimal slog.Handler writing "[HH:MM:SS] [LEVEL] msg k=v..."
// lines, gated by the package-level level so it can be adjusted at runtime
// (e.g. via a future client-API debug toggle) without rebuilding the logger.
type handler struct {
	out io.Writer
	mu  *sync.Mutex
}

// Init installs the handler as slog's default logger.
func Init(out io.Writer) {
	h := &handler{out: out, mu: &sync.Mutex{}}
	slog.SetDefault(slog.New(h))
}

func (h *handler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= currentLevel()
}

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var b strings.Builder
	b.WriteString("[")
	b.WriteString(r.Time.Format("15:04:05"))
	b.WriteString("] [")
	b.WriteString(strings.ToUpper(r.Level.String()))
	b.WriteString("] ")
	b.WriteString(r.Message)
	r.Attrs(func(a slog.Attr) bool {
		b.WriteString(" ")
		b.WriteString(a.Key)
		b.WriteString("=")
		b.WriteString(a.Value.String())
		return true
	})
	b.WriteString("\n")
	_, err := h.out.Write([]byte(b.String()))
	return err
}

func (h *handler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *handler) WithGroup(_ string) slog.Handler       { return h }
