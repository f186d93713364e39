// Package logger builds the structured slog.Logger the runtime components
// take via their configs, and bridges legacy line-oriented loggers onto it
// so embedders with an existing Println-style logger can reuse it without
// adapters of their own.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// New returns a text-handler logger at the given level, writing to w.
// A nil writer means stderr.
func New(level slog.Level, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Printer is the minimal line-oriented logging interface many applications
// already carry; see FromPrinter.
type Printer interface {
	Println(msg string)
}

// FromPrinter adapts a Printer into a slog.Logger: every record is rendered
// as "level=LEVEL msg k=v ..." on one line. Attribute fidelity is traded
// for zero configuration; use New for real structured output.
func FromPrinter(p Printer) *slog.Logger {
	return slog.New(&printerHandler{p: p})
}

type printerHandler struct {
	p     Printer
	attrs []slog.Attr
}

func (h *printerHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *printerHandler) Handle(_ context.Context, r slog.Record) error {
	line := "level=" + r.Level.String() + " " + r.Message
	emit := func(a slog.Attr) bool {
		line += " " + a.Key + "=" + a.Value.String()
		return true
	}
	for _, a := range h.attrs {
		emit(a)
	}
	r.Attrs(emit)
	h.p.Println(line)
	return nil
}

func (h *printerHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &printerHandler{p: h.p, attrs: merged}
}

func (h *printerHandler) WithGroup(string) slog.Handler { return h }
