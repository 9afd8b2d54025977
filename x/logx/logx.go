// Package logx provides the node console log format as an slog.Handler:
//
//	INFO [ota] Rolling back to previous version
//	WARN [firmware] Firmware has failed count=2 max=3
//
// One record is written per line and flushed immediately. Attributes other
// than the module are rendered as key=value pairs.
package logx

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

// ModuleKey is the attribute key that selects the bracketed module tag.
const ModuleKey = "module"

// Handler writes records in the console format.
type Handler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	module string
	attrs  []slog.Attr
	group  string
}

// New returns a Handler writing to w at the given minimum level.
func New(w io.Writer, level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Handler{mu: &sync.Mutex{}, w: w, level: level}
}

// Discard returns a handler that drops everything. The node installs it when
// no console is attached.
func Discard() slog.Handler { return New(io.Discard, slog.Level(127)) }

func (h *Handler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(levelName(r.Level))
	b.WriteString(" [")
	if h.module != "" {
		b.WriteString(h.module)
	} else {
		b.WriteByte('?')
	}
	b.WriteString("] ")
	b.WriteString(r.Message)

	for _, a := range h.attrs {
		writeAttr(&b, h.group, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == ModuleKey {
			return true
		}
		writeAttr(&b, h.group, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		if a.Key == ModuleKey {
			nh.module = a.Value.String()
			continue
		}
		nh.attrs = append(nh.attrs, a)
	}
	return &nh
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	if nh.group != "" {
		nh.group += "." + name
	} else {
		nh.group = name
	}
	return &nh
}

// Install makes a console handler the slog default. Without a console the
// node logs nothing.
func Install(w io.Writer, level slog.Level, console bool) {
	h := Discard()
	if console {
		h = New(w, level)
	}
	slog.SetDefault(slog.New(h))
}

// Module returns the default logger tagged with name. Call it after the
// handler is installed; the returned logger keeps the handler it saw.
func Module(name string) *slog.Logger {
	return slog.Default().With(ModuleKey, name)
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARN"
	case l >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}

func writeAttr(b *strings.Builder, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	b.WriteByte(' ')
	if group != "" {
		b.WriteString(group)
		b.WriteByte('.')
	}
	b.WriteString(a.Key)
	b.WriteByte('=')
	s := a.Value.String()
	if strings.ContainsAny(s, " \t\"=") {
		s = strconv.Quote(s)
	}
	b.WriteString(s)
}
