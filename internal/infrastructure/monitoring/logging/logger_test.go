package logging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger() (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewLoggerFromCore(core), logs
}

func TestNewLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "console", ""} {
		l, err := NewLogger(LogConfig{Level: LevelDebug, Format: format, OutputPaths: []string{"stdout"}})
		require.NoError(t, err, format)
		assert.NotNil(t, l)
	}
}

func TestNewLogger_UnopenablePath(t *testing.T) {
	l, err := NewLogger(LogConfig{OutputPaths: []string{"/nonexistent-dir/fwatch/out.log"}})
	assert.Error(t, err)
	assert.Nil(t, l)
}

func TestParseLevel(t *testing.T) {
	cases := map[string]struct {
		level zapcore.Level
		ok    bool
	}{
		"debug":   {zapcore.DebugLevel, true},
		"INFO":    {zapcore.InfoLevel, true},
		"":        {zapcore.InfoLevel, true},
		"warning": {zapcore.WarnLevel, true},
		"error":   {zapcore.ErrorLevel, true},
		"verbose": {zapcore.InfoLevel, false},
	}
	for in, want := range cases {
		got, ok := ParseLevel(in)
		assert.Equal(t, want.level, got, in)
		assert.Equal(t, want.ok, ok, in)
	}
}

func TestZapLogger_FieldsAreTyped(t *testing.T) {
	l, logs := newObservedLogger()
	deadline := time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC)

	l.Info("ledger updated",
		CaseID("24CVS001234"),
		Date("deadline", deadline),
		Int("events", 3),
		Bool("verified", true),
		Strings("matched", []string{"report of sale"}),
		Err(errors.New("boom")),
	)

	require.Equal(t, 1, logs.Len())
	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, "24CVS001234", ctx["case_id"])
	assert.Equal(t, "2025-06-12", ctx["deadline"])
	assert.Equal(t, int64(3), ctx["events"])
	assert.Equal(t, true, ctx["verified"])
	assert.Equal(t, "boom", ctx["error"])
}

func TestZapLogger_WithAndNamed(t *testing.T) {
	l, logs := newObservedLogger()
	child := l.Named("sweep").With(String("run", "r1"))
	child.Warn("case skipped")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "sweep", entry.LoggerName)
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "r1", entry.ContextMap()["run"])
}

func TestNopLogger_AllMethodsNoOp(t *testing.T) {
	l := NewNopLogger()
	l.Debug("msg")
	l.Info("msg")
	l.Warn("msg")
	l.Error("msg")
	assert.NotNil(t, l.With(String("k", "v")))
	assert.NotNil(t, l.Named("x"))
}

func TestDefaultAndContext(t *testing.T) {
	l, logs := newObservedLogger()

	ctx := WithContext(context.Background(), l)
	FromContext(ctx).Info("from context")
	assert.Equal(t, 1, logs.Len())

	SetDefault(nil)
	assert.NotNil(t, Default())
	assert.NotNil(t, FromContext(context.Background()))
}
