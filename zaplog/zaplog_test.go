package zaplog_test

import (
	"testing"

	"github.com/goliatone/go-lazarus/zaplog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerWritesKeyValuePairs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zaplog.Wrap(zap.New(core)).Named("lifecycle")

	logger.Info("incident created", "incident_id", "abc", "severity", "HIGH")
	logger.Warn("broadcast failed", "error", "timeout")
	logger.Debug("noise")
	logger.Error("boom")

	require.Equal(t, 4, logs.Len())

	first := logs.All()[0]
	assert.Equal(t, "incident created", first.Message)
	assert.Equal(t, "lifecycle", first.LoggerName)
	assert.Equal(t, "abc", first.ContextMap()["incident_id"])
	assert.Equal(t, "HIGH", first.ContextMap()["severity"])

	assert.Equal(t, zapcore.WarnLevel, logs.All()[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[3].Level)
}

func TestWithCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zaplog.Wrap(zap.New(core)).With("service", "lazarus")

	logger.Info("ready")
	logger.Debug("filtered by level")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "lazarus", logs.All()[0].ContextMap()["service"])
}

func TestNewBuildsLogger(t *testing.T) {
	logger, err := zaplog.New("debug", "console", "lazarus-test")
	require.NoError(t, err)
	assert.NotNil(t, logger.Zap())
}

func TestWrapNil(t *testing.T) {
	assert.NotPanics(t, func() {
		zaplog.Wrap(nil).Info("discarded")
	})
}
