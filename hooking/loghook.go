package hooking

import (
	"context"
	"log/slog"
)

// A LogHook prints the notes of enabled diagnostic classes to a structured
// logger.
type LogHook struct {
	*slog.Logger
	mask LogMask
}

// NewLogHook creates a LogHook. A nil logger means slog.Default().
func NewLogHook(logger *slog.Logger, mask LogMask) *LogHook {
	if logger == nil {
		logger = slog.Default()
	}

	return &LogHook{Logger: logger, mask: mask}
}

// Mask returns the enabled classes.
func (h *LogHook) Mask() LogMask {
	return h.mask
}

// Func logs the note carried by the context.
func (h *LogHook) Func(ctx HookCtx) {
	if ctx.Pos == nil || !h.mask.Has(ctx.Pos.Mask) {
		return
	}

	note, ok := ctx.Detail.(Note)
	if !ok {
		return
	}

	attrs := make([]slog.Attr, 0, len(note.Attrs)+2)
	attrs = append(attrs, slog.String("pos", ctx.Pos.Name))
	if named, ok := ctx.Domain.(Named); ok {
		attrs = append(attrs, slog.String("domain", named.Name()))
	}
	attrs = append(attrs, note.Attrs...)

	h.LogAttrs(context.Background(), levelOf(ctx.Pos.Mask), note.Msg, attrs...)
}

func levelOf(mask LogMask) slog.Level {
	switch {
	case mask.Has(LogGuestError):
		return slog.LevelWarn
	case mask.Has(LogUnimp):
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
