package main

import (
	"testing"

	"github.com/chess-vn/slpuzzle/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireBridge(t *testing.T) {
	err := requireBridge(config.Config{BridgeSecret: "s"})
	require.ErrorContains(t, err, "realtime.url")

	err = requireBridge(config.Config{RealtimeUrl: "http://localhost:7202"})
	require.ErrorContains(t, err, "bridge.secret")

	assert.NoError(t, requireBridge(config.Config{RealtimeUrl: "http://localhost:7202", BridgeSecret: "s"}))
}
