// Package logging owns the process-wide *zap.Logger singleton and the
// in-memory ring buffer of recent Error-level records that gets
// reprinted to stderr at process exit (spec §7 "Propagation").
package logging

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ringSize bounds how many error records are retained for the exit
// summary; older ones are dropped.
const ringSize = 64

var (
	mu     sync.Mutex
	ring   []string
	global *zap.Logger
)

// Init builds and installs the process-wide logger. verbose raises the
// level to Debug; otherwise the level is Info. Init must be called once
// at startup, before any other package logs; it is not safe to call
// concurrently with Logger.
func Init(verbose bool) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	base, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}

	tee := zapcore.NewTee(base.Core(), &ringCore{minLevel: zapcore.ErrorLevel})
	logger := zap.New(tee, zap.AddCaller())

	mu.Lock()
	global = logger
	mu.Unlock()

	return logger, nil
}

// Logger returns the process-wide logger, or a no-op logger if Init has
// not been called (e.g. in tests that don't exercise logging).
func Logger() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		return zap.NewNop()
	}
	return global
}

// FlushErrors writes every ring-buffered Error-level record to stderr.
// Called once at process exit so a crash or ordinary shutdown always
// leaves a visible trail of what went wrong, even though the normal log
// stream may be redirected to a file or discarded.
func FlushErrors() {
	mu.Lock()
	defer mu.Unlock()
	if len(ring) == 0 {
		return
	}
	fmt.Fprintln(os.Stderr, "--- errors logged this session ---")
	for _, line := range ring {
		fmt.Fprintln(os.Stderr, line)
	}
}

// ringCore is a bare zapcore.Core that only ever appends to the
// package's ring buffer; it is teed alongside the real output core so
// every Error-and-above entry lands in both places.
type ringCore struct {
	minLevel zapcore.Level
	fields   []zapcore.Field
}

func (c *ringCore) Enabled(lvl zapcore.Level) bool { return lvl >= c.minLevel }

func (c *ringCore) With(fields []zapcore.Field) zapcore.Core {
	return &ringCore{minLevel: c.minLevel, fields: append(c.fields[:len(c.fields):len(c.fields)], fields...)}
}

func (c *ringCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *ringCore) Write(ent zapcore.Entry, _ []zapcore.Field) error {
	mu.Lock()
	line := fmt.Sprintf("[%s] %s: %s", ent.Time.Format("15:04:05"), ent.LoggerName, ent.Message)
	ring = append(ring, line)
	if len(ring) > ringSize {
		ring = ring[len(ring)-ringSize:]
	}
	mu.Unlock()
	return nil
}

func (c *ringCore) Sync() error { return nil }
