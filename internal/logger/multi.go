package logger

import (
	"context"
	"errors"
	"log/slog"
)

// Multi fans a record out to several handlers.
type Multi struct {
	handlers []slog.Handler
}

func NewMulti(hs ...slog.Handler) *Multi { return &Multi{handlers: hs} }

func (m *Multi) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (m *Multi) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &Multi{handlers: hs}
}

func (m *Multi) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &Multi{handlers: hs}
}

// LevelSplitHandler sends records below Threshold to Low and the rest to High.
type LevelSplitHandler struct {
	Low       slog.Handler
	High      slog.Handler
	Threshold slog.Level
}

func (s *LevelSplitHandler) pick(l slog.Level) slog.Handler {
	if l >= s.Threshold {
		return s.High
	}
	return s.Low
}

func (s *LevelSplitHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return s.pick(l).Enabled(ctx, l)
}

func (s *LevelSplitHandler) Handle(ctx context.Context, r slog.Record) error {
	return s.pick(r.Level).Handle(ctx, r)
}

func (s *LevelSplitHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LevelSplitHandler{Low: s.Low.WithAttrs(attrs), High: s.High.WithAttrs(attrs), Threshold: s.Threshold}
}

func (s *LevelSplitHandler) WithGroup(name string) slog.Handler {
	return &LevelSplitHandler{Low: s.Low.WithGroup(name), High: s.High.WithGroup(name), Threshold: s.Threshold}
}
