package logging

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type record struct {
	level string
	msg   string
	args  []any
}

type capture struct {
	mu      sync.Mutex
	records []record
}

func (c *capture) add(level, msg string, args []any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, record{level, msg, args})
}

func (c *capture) Debug(msg string, args ...any) { c.add("debug", msg, args) }
func (c *capture) Info(msg string, args ...any)  { c.add("info", msg, args) }
func (c *capture) Warn(msg string, args ...any)  { c.add("warn", msg, args) }
func (c *capture) Error(msg string, args ...any) { c.add("error", msg, args) }

func TestNewSlog_Levels(t *testing.T) {
	c := &capture{}
	logger := NewSlog(c)

	logger.Debug("d")
	logger.Info("i")
	logger.Warn("w")
	logger.Error("e")
	logger.Log(context.Background(), slog.LevelError+4, "fatal-ish")

	require.Len(t, c.records, 5)
	assert.Equal(t, []string{"debug", "info", "warn", "error", "error"}, []string{
		c.records[0].level, c.records[1].level, c.records[2].level, c.records[3].level, c.records[4].level,
	})
}

func TestNewSlog_AttrsAndGroups(t *testing.T) {
	c := &capture{}
	logger := NewSlog(c).With("component", "redis").WithGroup("op").With("name", "get")

	logger.Info("done", "key", "a")

	require.Len(t, c.records, 1)
	assert.Equal(t, []any{"component", "redis", "op.name", "get", "op.key", "a"}, c.records[0].args)
}

func TestNewSlog_Nil(t *testing.T) {
	assert.Same(t, slog.Default(), NewSlog(nil))
}

func TestNewHandler_Level(t *testing.T) {
	c := &capture{}
	logger := slog.New(NewHandler(c, slog.LevelWarn))

	logger.Info("dropped")
	logger.Warn("kept")

	require.Len(t, c.records, 1)
	assert.Equal(t, "kept", c.records[0].msg)
}

func TestZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Zap(zap.New(core))

	l.Info("cache hit", "key", "user:1", "latency_ms", 3)
	l.Error("store failed", "op", "get")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "cache hit", entries[0].Message)
	assert.Equal(t, "user:1", entries[0].ContextMap()["key"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)

	assert.NoError(t, Zap(nil).Sync())
}

func TestZap_ThroughSlog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewSlog(Zap(zap.New(core))).With("component", "tiered")

	logger.Warn("backfill failed", "key", "k")

	entries := logs.FilterMessage("backfill failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "tiered", entries[0].ContextMap()["component"])
}

func TestLogrus(t *testing.T) {
	base, hook := logrustest.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := Logrus(base)

	l.Debug("scan", "cursor", 10)
	l.Warn("odd", "dangling")

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, logrus.DebugLevel, entries[0].Level)
	assert.Equal(t, 10, entries[0].Data["cursor"])
	assert.Equal(t, "dangling", entries[1].Data["!BADKEY"])
}

func TestFields_NonStringKey(t *testing.T) {
	f := fields([]any{1, "one"})
	assert.Equal(t, "one", f["1"])
}
