package logging_test

import (
	"testing"

	"github.com/chess-vn/slpuzzle/pkg/logging"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPackageHelpersWriteToReplacedLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	previous := logging.Logger()
	logging.SetLogger(zap.New(core))
	t.Cleanup(func() { logging.SetLogger(previous) })

	logging.Debug("debug", zap.String("match_id", "m1"))
	logging.Info("info")
	logging.Warn("warn")
	logging.Error("error", zap.Int("n", 2))

	entries := logs.All()
	require.Len(t, entries, 4)
	require.Equal(t, "debug", entries[0].Message)
	require.Equal(t, "m1", entries[0].ContextMap()["match_id"])
	require.Equal(t, zapcore.ErrorLevel, entries[3].Level)
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	previous := logging.Logger()
	t.Cleanup(func() { logging.SetLogger(previous) })

	require.Error(t, logging.Init("loud", false))
	require.NoError(t, logging.Init("debug", true))
}

func TestSetLoggerNil(t *testing.T) {
	previous := logging.Logger()
	t.Cleanup(func() { logging.SetLogger(previous) })

	logging.SetLogger(nil)
	require.NotNil(t, logging.Logger())
	logging.Info("dropped")
}
