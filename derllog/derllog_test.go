package derllog

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/LordOfDragons/deremotelauncher-sub000/protocol"
	"github.com/stretchr/testify/require"
)

func TestParseLevelKnownAndUnknown(t *testing.T) {
	require.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	require.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	require.Equal(t, zapcore.InfoLevel, ParseLevel("not-a-level"))
}

func TestNewBuildsLogger(t *testing.T) {
	l, err := New(zapcore.InfoLevel)
	require.NoError(t, err)
	require.NotNil(t, l)
}

func TestLogMessageDoesNotPanic(t *testing.T) {
	l, err := New(zapcore.DebugLevel)
	require.NoError(t, err)

	LogMessage(l, protocol.LogLevelInfo, "game", "hello")
	LogMessage(l, protocol.LogLevelWarning, "game", "careful")
	LogMessage(l, protocol.LogLevelError, "game", "boom")
}
