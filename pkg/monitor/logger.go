package monitor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"polehammer/pkg/llm"
)

// CustomHandler implements slog.Handler to provide [TIME] [LEVEL] format
type CustomHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	opts   slog.HandlerOptions
	attrs  []slog.Attr
	groups []string
}

func NewCustomHandler(w io.Writer, opts slog.HandlerOptions) *CustomHandler {
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}
	return &CustomHandler{
		mu:   &sync.Mutex{},
		w:    w,
		opts: opts,
	}
}

func (h *CustomHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *CustomHandler) Handle(ctx context.Context, r slog.Record) error {
	buf := bytes.NewBuffer(nil)

	// Request id, when the server tagged the context with one
	debugID := ""
	if ctx != nil {
		if id, ok := ctx.Value(llm.DebugDirContextKey).(string); ok {
			debugID = id
		}
	}

	// Format: [2006-01-02 15:04:05] [LEVEL] [REQUEST_ID] Message
	// Or:    [2006-01-02 15:04:05] [LEVEL] Message
	fmt.Fprintf(buf, "[%s] [%s]",
		r.Time.Format("2006-01-02 15:04:05"),
		r.Level,
	)

	if debugID != "" {
		fmt.Fprintf(buf, " [%s]", debugID)
	}

	fmt.Fprintf(buf, " %s", r.Message)

	// Append attributes
	// 1. Stored attributes (from WithAttrs)
	for _, a := range h.attrs {
		appendAttr(buf, "", a)
	}

	// 2. Record attributes, under the open groups
	prefix := h.groupPrefix()
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(buf, prefix, a)
		return true
	})

	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *CustomHandler) groupPrefix() string {
	if len(h.groups) == 0 {
		return ""
	}
	return strings.Join(h.groups, ".") + "."
}

func appendAttr(buf *bytes.Buffer, prefix string, a slog.Attr) {
	val := a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if val.Kind() == slog.KindGroup {
		for _, ga := range val.Group() {
			appendAttr(buf, prefix+a.Key+".", ga)
		}
		return
	}

	buf.WriteString(" ")
	buf.WriteString(prefix)
	buf.WriteString(a.Key)
	buf.WriteString("=")

	switch val.Kind() {
	case slog.KindString:
		fmt.Fprintf(buf, "%q", val.String())
	case slog.KindTime:
		buf.WriteString(val.Time().Format(time.RFC3339))
	default:
		fmt.Fprintf(buf, "%v", val.Any())
	}
}

func (h *CustomHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	// stored keys are qualified now; later groups do not apply to them
	prefix := h.groupPrefix()
	stored := append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		stored = append(stored, slog.Attr{Key: prefix + a.Key, Value: a.Value})
	}
	return &CustomHandler{
		mu:     h.mu,
		w:      h.w,
		opts:   h.opts,
		attrs:  stored,
		groups: h.groups,
	}
}

// WithGroup prefixes later attribute keys with name.
func (h *CustomHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &CustomHandler{
		mu:     h.mu,
		w:      h.w,
		opts:   h.opts,
		attrs:  h.attrs,
		groups: append(append([]string(nil), h.groups...), name),
	}
}

// ParseLevel maps a config log level onto slog. Unknown values mean info.
func ParseLevel(levelStr string) slog.Level {
	var level slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return level
}

// SetupSlog initializes the global slog logger with the CustomHandler.
func SetupSlog(levelStr string) {
	handler := NewCustomHandler(os.Stderr, slog.HandlerOptions{
		Level: ParseLevel(levelStr),
	})

	slog.SetDefault(slog.New(handler))
}

// PrintBanner prints the startup banner
func PrintBanner(w io.Writer) {
	fmt.Fprintln(w, `
  _ __   ___ | | ___| |__   __ _ _ __ ___  _ __ ___   ___ _ __
 | '_ \ / _ \| |/ _ \ '_ \ / _' | '_ ' _ \| '_ ' _ \ / _ \ '__|
 | |_) | (_) | |  __/ | | | (_| | | | | | | | | | | |  __/ |
 | .__/ \___/|_|\___|_| |_|\__,_|_| |_| |_|_| |_| |_|\___|_|
 |_|`)
}
