// Package logger installs a global zap logger using an ECS-compatible
// encoder, the way every service entrypoint in this repo starts up.
package logger

import (
	"os"
	"strings"

	"go.elastic.co/ecszap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger at the level named by levelName (one of DEBUG,
// PRODUCTION/INFO, WARN, ERROR, case-insensitive; unrecognized values fall
// back to INFO), installs it as the global logger via zap.ReplaceGlobals,
// and returns it so callers can defer Sync().
func New(levelName string) *zap.Logger {
	encoderConfig := ecszap.NewDefaultEncoderConfig()
	core := ecszap.NewCore(encoderConfig, os.Stdout, levelFor(levelName))
	log := zap.New(core, zap.AddCaller())
	zap.ReplaceGlobals(log)
	return log
}

func levelFor(levelName string) zapcore.Level {
	switch strings.ToUpper(strings.TrimSpace(levelName)) {
	case "DEBUG":
		return zap.DebugLevel
	case "PRODUCTION", "INFO", "":
		return zap.InfoLevel
	case "WARN", "WARNING":
		return zap.WarnLevel
	case "ERROR":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
