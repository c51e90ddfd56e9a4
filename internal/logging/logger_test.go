package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newTestLogger(level zapcore.Level) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	encoderConfig := zapcore.EncoderConfig{
		MessageKey:  "msg",
		LevelKey:    "level",
		NameKey:     "logger",
		LineEnding:  zapcore.DefaultLineEnding,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(buf),
		zap.NewAtomicLevelAt(level),
	)
	return NewFromZap(zap.New(core)), buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestLogger_FieldsAndLevels(t *testing.T) {
	logger, buf := newTestLogger(zapcore.InfoLevel)

	logger.Debug("hidden")
	logger.Info("connected", Fields{"endpoint": "ws://localhost/hubs/notifications"})
	logger.Warn("reconnect attempt failed", Fields{"attempt": 2, "error": errors.New("refused")})

	entries := decodeLines(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "connected", entries[0]["msg"])
	assert.Equal(t, "ws://localhost/hubs/notifications", entries[0]["endpoint"])
	assert.Equal(t, "warn", entries[1]["level"])
	assert.Equal(t, "refused", entries[1]["error"])
	assert.EqualValues(t, 2, entries[1]["attempt"])
}

func TestLogger_WithAndNamed(t *testing.T) {
	logger, buf := newTestLogger(zapcore.DebugLevel)

	scoped := logger.Named("connection").With(Fields{"session": "tab-1"})
	scoped.Debug("state changed")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "connection", entries[0]["logger"])
	assert.Equal(t, "tab-1", entries[0]["session"])
	assert.Same(t, logger, logger.With(nil))
}

func TestNew_Config(t *testing.T) {
	logger, err := New(DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, logger)

	dev, err := New(Config{Level: DebugLevel, Development: true})
	require.NoError(t, err)
	assert.NotNil(t, dev.Zap())
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	logger := NewNop()
	assert.Same(t, logger, OrNop(logger))
}
