// Package derllog builds the zap loggers used across the server and client
// binaries. The teacher carries no logging library at all (syncthing's
// checkout in the pack predates structured logging there); this package is
// grounded instead on the original implementation's denLogger severity
// levels (info/warning/error, see derlProtocol::LogLevel) and on how the
// rest of the retrieval pack wires zap (pmtiles' cmd/pmtiles, the NithronOS
// and dittofs manifests).
package derllog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/LordOfDragons/deremotelauncher-sub000/protocol"
)

// New builds a console-encoded zap logger at the given level, suitable for
// both cmd/derl-server and cmd/derl-client.
func New(level zapcore.Level) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// ParseLevel maps a config/CLI string to a zap level, defaulting to info
// for anything unrecognized.
func ParseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// ForPeer returns a child logger scoped to one connected peer, named the
// way a remote client or server connection is identified in log lines.
func ForPeer(base *zap.Logger, name string) *zap.Logger {
	return base.With(zap.String("peer", name))
}

// LogMessage logs one line received over the wire's logs message at the
// severity it was sent with.
func LogMessage(l *zap.Logger, level protocol.LogLevel, source, message string) {
	fields := []zap.Field{zap.String("source", source)}
	switch level {
	case protocol.LogLevelWarning:
		l.Warn(message, fields...)
	case protocol.LogLevelError:
		l.Error(message, fields...)
	default:
		l.Info(message, fields...)
	}
}
