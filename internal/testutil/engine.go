// Package testutil provides helpers shared by the hostbridge tests.
package testutil

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"

	"github.com/joeycumines/hostbridge/internal/bridge"
	"github.com/stretchr/testify/require"
)

// NewEngine creates and starts an engine, closing it when the test ends.
// Unless opts carry a logger, engine logs go to the test log.
func NewEngine(t testing.TB, opts ...bridge.Option) *bridge.Engine {
	t.Helper()
	opts = append([]bridge.Option{bridge.WithLogger(NewLogger(t))}, opts...)
	e, err := bridge.New(opts...)
	require.NoError(t, err)
	require.NoError(t, e.Start())
	t.Cleanup(func() {
		if err := e.Close(); err != nil {
			t.Errorf("close engine: %v", err)
		}
	})
	return e
}

// NewLogger returns a debug level logger writing to t.Log.
func NewLogger(t testing.TB) *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type testWriter struct{ t testing.TB }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}

// LogBuffer collects log output for assertions. It is safe for concurrent
// use.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Logger returns a debug level JSON logger writing to the buffer.
func (b *LogBuffer) Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(b, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
