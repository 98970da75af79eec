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

	"github.com/google/uuid"
)

type turnIDKey struct{}

// WithTurnID tags ctx so every log line of the turn carries id.
func WithTurnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, turnIDKey{}, id)
}

// NewTurn tags ctx with a fresh short turn id.
func NewTurn(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()[:8]
	return WithTurnID(ctx, id), id
}

// TurnID returns the turn id stored in ctx, if any.
func TurnID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(turnIDKey{}).(string)
	return id
}

// CustomHandler implements slog.Handler to provide [TIME] [LEVEL] [TURN] format
type CustomHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	opts   slog.HandlerOptions
	attrs  []slog.Attr
	prefix string
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

	// Format: [2006-01-02 15:04:05] [LEVEL] [TURN_ID] Message k=v
	fmt.Fprintf(buf, "[%s] [%s]",
		r.Time.Format("2006-01-02 15:04:05"),
		r.Level,
	)

	if id := TurnID(ctx); id != "" {
		fmt.Fprintf(buf, " [%s]", id)
	}

	fmt.Fprintf(buf, " %s", r.Message)

	for _, a := range h.attrs {
		h.appendAttr(buf, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(buf, h.prefix, a)
		return true
	})

	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *CustomHandler) appendAttr(buf *bytes.Buffer, prefix string, a slog.Attr) {
	val := a.Value.Resolve()
	if val.Kind() == slog.KindGroup {
		for _, ga := range val.Group() {
			h.appendAttr(buf, prefix+a.Key+".", ga)
		}
		return
	}

	buf.WriteString(" ")
	buf.WriteString(prefix + a.Key)
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
	prefixed := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	prefixed = append(prefixed, h.attrs...)
	for _, a := range attrs {
		prefixed = append(prefixed, slog.Attr{Key: h.prefix + a.Key, Value: a.Value})
	}
	return &CustomHandler{
		mu:     h.mu,
		w:      h.w,
		opts:   h.opts,
		attrs:  prefixed,
		prefix: h.prefix,
	}
}

func (h *CustomHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &CustomHandler{
		mu:     h.mu,
		w:      h.w,
		opts:   h.opts,
		attrs:  h.attrs,
		prefix: h.prefix + name + ".",
	}
}

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level. Unknown values mean info.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupSlog installs the CustomHandler as the default logger. The returned
// LevelVar changes the level at runtime, e.g. when system.json is edited.
func SetupSlog(levelStr string) *slog.LevelVar {
	level := &slog.LevelVar{}
	level.Set(ParseLevel(levelStr))

	handler := NewCustomHandler(os.Stderr, slog.HandlerOptions{
		Level: level,
	})

	slog.SetDefault(slog.New(handler))
	return level
}

// PrintBanner prints the startup banner
func PrintBanner(name string) {
	banner := `
 ____  _____ ____  ____   ___  _   _    _
|  _ \| ____|  _ \/ ___| / _ \| \ | |  / \
| |_) |  _| | |_) \___ \| | | |  \| | / _ \
|  __/| |___|  _ < ___) | |_| | |\  |/ ___ \
|_|   |_____|_| \_\____/ \___/|_| \_/_/   \_\
`
	fmt.Println(banner)
	if name != "" {
		fmt.Printf("  Answering as %s\n\n", name)
	}
}
