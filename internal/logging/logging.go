// Package logging sets up the daemon's structured logger. The teacher
// (grove) logs with the standard library's log.Printf using key=value text
// ("start requested: project=%s branch=%s instance=%s ..."); corral keeps
// that same key=value texture but through zap's SugaredLogger so daemon
// operators get machine-parseable fields as the process count grows.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a SugaredLogger that writes JSON lines to logPath (append
// mode) in production and pretty console output when dev is true.
func New(logPath string, dev bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.OutputPaths = []string{logPath}
	cfg.ErrorOutputPaths = []string{logPath}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// Noop returns a logger that discards everything, for tests that don't
// want daemon log output mixed into `go test -v`.
func Noop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
