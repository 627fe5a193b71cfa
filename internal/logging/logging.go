// Package logging builds the zap.Logger instances Janus passes down
// explicitly to every component that needs one. There is no
// package-level default: the caller (cmd/janus) constructs exactly one
// root logger and threads it through server, client, lounge, and the
// lower protocol/archive layers as a constructor argument.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level names the verbosity a caller asked for (cmd/janus reads it from
// the JANUS_LOG environment variable).
type Level int

const (
	LevelInfo Level = iota
	LevelDebug
	LevelQuiet
)

// ParseLevel maps a level string to a Level, defaulting to info on any
// unrecognised input rather than erroring.
func ParseLevel(s string) Level {
	switch s {
	case "debug", "d", "verbose", "v":
		return LevelDebug
	case "quiet", "q":
		return LevelQuiet
	default:
		return LevelInfo
	}
}

// New builds a console-encoded zap.Logger at the given level. Production
// deployments that want JSON output can swap the encoder; Janus only
// ever runs as a CLI-launched process attached to a terminal or a
// systemd journal, so human-readable console output is the right
// default.
func New(level Level) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch level {
	case LevelDebug:
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case LevelQuiet:
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	log, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}
	return log, nil
}
