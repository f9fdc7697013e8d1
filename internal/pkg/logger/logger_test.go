package logger

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// resetLogger resets the package state between tests
func resetLogger() {
	baseLogger = nil
	initBaseLoggerOnce = sync.Once{}
}

func TestInit(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		t.Run("valid level "+level, func(t *testing.T) {
			resetLogger()
			require.NoError(t, Init(level))
			assert.NotNil(t, baseLogger)
		})
	}

	t.Run("invalid level", func(t *testing.T) {
		resetLogger()
		assert.Error(t, Init("verbose"))
		assert.Nil(t, baseLogger)
	})

	t.Run("only the first call configures the logger", func(t *testing.T) {
		resetLogger()
		require.NoError(t, Init("debug"))
		first := baseLogger

		require.NoError(t, Init("error"))
		assert.Same(t, first, baseLogger)
	})
}

func TestDerive(t *testing.T) {
	resetLogger()
	require.NoError(t, Init("debug"))

	t.Run("stores a logger in the context", func(t *testing.T) {
		ctx := Derive(t.Context(), "batch.id", "abc")

		l, ok := ctx.Value(ctxKey).(*zap.SugaredLogger)
		require.True(t, ok)
		assert.NotNil(t, l)
	})

	t.Run("derives from an already derived context", func(t *testing.T) {
		ctx := Derive(Derive(t.Context(), "a", 1), "b", 2)

		l, ok := ctx.Value(ctxKey).(*zap.SugaredLogger)
		require.True(t, ok)
		assert.NotNil(t, l)
	})

	t.Run("without key value pairs", func(t *testing.T) {
		ctx := Derive(t.Context())
		_, ok := ctx.Value(ctxKey).(*zap.SugaredLogger)
		assert.True(t, ok)
	})
}

func TestDeriveFromCtx(t *testing.T) {
	t.Run("falls back to a nop logger before Init", func(t *testing.T) {
		resetLogger()
		assert.Same(t, nopLogger, deriveFromCtx(t.Context()))
	})

	resetLogger()
	require.NoError(t, Init("debug"))

	t.Run("returns the base logger when nothing is attached", func(t *testing.T) {
		assert.Same(t, baseLogger, deriveFromCtx(t.Context()))
	})

	t.Run("adds trace and span ids", func(t *testing.T) {
		traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
		spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
		ctx := trace.ContextWithSpanContext(t.Context(), trace.NewSpanContext(trace.SpanContextConfig{
			TraceID: traceID,
			SpanID:  spanID,
		}))

		l := deriveFromCtx(ctx, "key", "value")
		assert.NotSame(t, baseLogger, l)
	})

	t.Run("ignores an empty span context", func(t *testing.T) {
		ctx := trace.ContextWithSpanContext(t.Context(), trace.SpanContext{})
		assert.Same(t, baseLogger, deriveFromCtx(ctx))
	})
}

func TestSync(t *testing.T) {
	t.Run("after init", func(t *testing.T) {
		resetLogger()
		require.NoError(t, Init("info"))
		assert.NotPanics(t, func() { _ = Sync() })
	})

	t.Run("without init is a no-op", func(t *testing.T) {
		resetLogger()
		assert.NotPanics(t, func() {
			assert.NoError(t, Sync())
		})
	})
}

func TestLevels(t *testing.T) {
	resetLogger()
	require.NoError(t, Init("debug"))

	ctx := Derive(t.Context(), "component", "batchproc")
	helpers := map[string]func(context.Context, string, ...any){
		"debug": Debug,
		"info":  Info,
		"warn":  Warn,
		"error": Error,
	}

	for name, fn := range helpers {
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() { fn(ctx, name+" message", "key", "value") })
			assert.NotPanics(t, func() { fn(t.Context(), name+" message") })
		})
	}

	t.Run("log with every level below panic", func(t *testing.T) {
		for _, level := range []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel} {
			assert.NotPanics(t, func() { log(ctx, level, "message", "level", level.String()) })
		}
	})

	t.Run("odd number of key value pairs", func(t *testing.T) {
		assert.NotPanics(t, func() { Info(ctx, "message", "dangling") })
	})

	t.Run("panic", func(t *testing.T) {
		assert.Panics(t, func() { Panic(ctx, "panic message", "key", "value") })
	})
}

func TestFatal(t *testing.T) {
	if os.Getenv("TXBATCH_TEST_FATAL_SUBPROCESS") == "1" {
		_ = Init("debug")
		Fatal(Derive(context.Background(), "component", "test"), "fatal error for test")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFatal")
	cmd.Env = append(os.Environ(), "TXBATCH_TEST_FATAL_SUBPROCESS=1")

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	err := cmd.Run()
	exitErr, ok := err.(*exec.ExitError)
	require.True(t, ok, "the subprocess should exit with a non-zero status")
	assert.Equal(t, 1, exitErr.ExitCode())
	assert.Contains(t, stdout.String(), `"level":"fatal"`)
	assert.Contains(t, stdout.String(), `"component":"test"`)
}
