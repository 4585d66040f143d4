package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiCyan   = "\033[36m"
	ansiGray   = "\033[90m"
)

// PrettyHandler renders records as single colored lines:
// [time] LEVEL message key=value ... Group names prefix their keys with
// dots.
type PrettyHandler struct {
	opts  slog.HandlerOptions
	w     io.Writer
	mu    sync.Mutex
	group string
	attrs []slog.Attr
}

func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	h := &PrettyHandler{w: w}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.opts.Level != nil {
		min = h.opts.Level.Level()
	}
	return level >= min
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.Grow(128)

	b.WriteString(ansiGray)
	b.WriteByte('[')
	b.WriteString(r.Time.Format(time.DateTime))
	b.WriteByte(']')
	b.WriteString(ansiReset)
	b.WriteByte(' ')

	b.WriteString(levelColor(r.Level))
	b.WriteString(ansiBold)
	fmt.Fprintf(&b, "%-5s", r.Level.String())
	b.WriteString(ansiReset)
	b.WriteByte(' ')

	b.WriteString(r.Message)

	if len(h.attrs) > 0 || r.NumAttrs() > 0 {
		b.WriteByte(' ')
		b.WriteString(ansiCyan)
		first := true
		emit := func(a slog.Attr) {
			if !first {
				b.WriteByte(' ')
			}
			first = false
			writeAttr(&b, a, h.group)
		}
		for _, a := range h.attrs {
			emit(a)
		}
		r.Attrs(func(a slog.Attr) bool {
			emit(a)
			return true
		})
		b.WriteString(ansiReset)
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &PrettyHandler{opts: h.opts, w: h.w, group: h.group, attrs: merged}
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &PrettyHandler{opts: h.opts, w: h.w, group: group, attrs: h.attrs}
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return ansiRed
	case level >= slog.LevelWarn:
		return ansiYellow
	case level >= slog.LevelInfo:
		return ansiBlue
	default:
		return ansiGray
	}
}

func writeAttr(b *strings.Builder, attr slog.Attr, group string) {
	key := attr.Key
	if group != "" {
		key = group + "." + key
	}
	b.WriteString(key)
	b.WriteByte('=')

	switch attr.Value.Kind() {
	case slog.KindString:
		s := attr.Value.String()
		if needsQuoting(s) {
			b.WriteByte('"')
			b.WriteString(s)
			b.WriteByte('"')
		} else {
			b.WriteString(s)
		}
	case slog.KindTime:
		b.WriteString(attr.Value.Time().Format(time.RFC3339))
	case slog.KindGroup:
		b.WriteByte('{')
		for i, a := range attr.Value.Group() {
			if i > 0 {
				b.WriteByte(' ')
			}
			writeAttr(b, a, "")
		}
		b.WriteByte('}')
	default:
		fmt.Fprint(b, attr.Value.Any())
	}
}

func needsQuoting(s string) bool {
	return strings.ContainsAny(s, " \t\n\"")
}
