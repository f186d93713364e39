package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWritesStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	log := New(slog.LevelInfo, &buf)

	log.Info("actor restarted", "path", "/user/worker")
	out := buf.String()
	require.Contains(t, out, "actor restarted")
	require.Contains(t, out, "path=/user/worker")

	buf.Reset()
	log.Debug("filtered out")
	require.Empty(t, buf.String())
}

type lineRecorder struct {
	lines []string
}

func (r *lineRecorder) Println(msg string) { r.lines = append(r.lines, msg) }

func TestFromPrinterRendersAttrs(t *testing.T) {
	rec := &lineRecorder{}
	log := FromPrinter(rec)

	log.With("system", "test").Warn("mailbox full", "path", "/user/sink")

	require.Len(t, rec.lines, 1)
	line := rec.lines[0]
	require.True(t, strings.HasPrefix(line, "level=WARN mailbox full"), line)
	require.Contains(t, line, "system=test")
	require.Contains(t, line, "path=/user/sink")
}
