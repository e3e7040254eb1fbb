package server

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/mikeboe/deep-research/pkg/database"
)

// LogWriter stores job log records.
type LogWriter interface {
	InsertLog(ctx context.Context, entry database.LogEntry) error
}

// DBLogHandler is a slog.Handler that writes records of one job to the
// database and passes them on to an optional second handler.
type DBLogHandler struct {
	store LogWriter
	jobID uuid.UUID
	next  slog.Handler
	level slog.Leveler

	attrs  []slog.Attr
	prefix string
}

// NewDBLogHandler stores Info and above for jobID. next may be nil.
func NewDBLogHandler(store LogWriter, jobID uuid.UUID, next slog.Handler) *DBLogHandler {
	return &DBLogHandler{
		store: store,
		jobID: jobID,
		next:  next,
		level: slog.LevelInfo,
	}
}

func (h *DBLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level >= h.level.Level() {
		return true
	}
	return h.next != nil && h.next.Enabled(ctx, level)
}

func (h *DBLogHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs error
	if r.Level >= h.level.Level() {
		meta := make(map[string]any, len(h.attrs)+r.NumAttrs())
		for _, a := range h.attrs {
			addAttr(meta, "", a)
		}
		r.Attrs(func(a slog.Attr) bool {
			addAttr(meta, h.prefix, a)
			return true
		})

		// The record may outlive a cancelled run.
		insertCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = h.store.InsertLog(insertCtx, database.LogEntry{
			JobID:     h.jobID,
			Timestamp: r.Time,
			Level:     r.Level.String(),
			Message:   r.Message,
			Metadata:  meta,
		})
		cancel()
	}
	if h.next != nil && h.next.Enabled(ctx, r.Level) {
		errs = errors.Join(errs, h.next.Handle(ctx, r))
	}
	return errs
}

func (h *DBLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := h.clone()
	for _, a := range attrs {
		if h.prefix != "" {
			a = slog.Group(h.prefix[:len(h.prefix)-1], a)
		}
		h2.attrs = append(h2.attrs, a)
	}
	if h.next != nil {
		h2.next = h.next.WithAttrs(attrs)
	}
	return h2
}

func (h *DBLogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	h2.prefix = h.prefix + name + "."
	if h.next != nil {
		h2.next = h.next.WithGroup(name)
	}
	return h2
}

func (h *DBLogHandler) clone() *DBLogHandler {
	h2 := *h
	h2.attrs = slices.Clip(h.attrs)
	return &h2
}

// addAttr flattens groups into dotted keys.
func addAttr(meta map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, ga := range v.Group() {
			addAttr(meta, p, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	meta[prefix+a.Key] = jsonValue(v)
}

func jsonValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.Any()
}
