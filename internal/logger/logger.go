package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

var levelVar = new(slog.LevelVar)

var L = slog.New(NewContextHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: levelVar})))

// SetOutput redirects L to w. Call it before anything logs; the stdio MCP
// mode needs stdout for the protocol.
func SetOutput(w io.Writer) {
	L = slog.New(NewContextHandler(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: levelVar})))
}

// SetLevel configures the global log level (debug, info, warn, error).
func SetLevel(lvl string) {
	switch strings.ToLower(lvl) {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

type contextKey string

const fieldsKey contextKey = "log_fields"

// Fields are attached to every record logged with a context that carries them.
type Fields struct {
	RunID     string
	Role      string
	Component string
}

// WithFields merges fields into ctx; non-empty values in f win over existing ones.
func WithFields(ctx context.Context, f Fields) context.Context {
	cur := FieldsFrom(ctx)
	if f.RunID != "" {
		cur.RunID = f.RunID
	}
	if f.Role != "" {
		cur.Role = f.Role
	}
	if f.Component != "" {
		cur.Component = f.Component
	}
	return context.WithValue(ctx, fieldsKey, cur)
}

// FieldsFrom returns the fields stored in ctx, or the zero value.
func FieldsFrom(ctx context.Context) Fields {
	if ctx == nil {
		return Fields{}
	}
	if f, ok := ctx.Value(fieldsKey).(Fields); ok {
		return f
	}
	return Fields{}
}

// ContextHandler decorates records with the Fields found in the logging context.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	f := FieldsFrom(ctx)
	if f.RunID != "" {
		r.AddAttrs(slog.String("run_id", f.RunID))
	}
	if f.Role != "" {
		r.AddAttrs(slog.String("role", f.Role))
	}
	if f.Component != "" {
		r.AddAttrs(slog.String("component", f.Component))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}
