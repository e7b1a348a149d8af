package main

import (
	"log/slog"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
)

// zapLogger backs the process-wide slog logger with zap.
type zapLogger struct {
	z *zap.Logger
}

func newLogger(dev bool) (*zapLogger, error) {
	var zc zap.Config
	if dev {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	// Reports go to stdout; logs stay on stderr.
	zc.OutputPaths = []string{"stderr"}
	z, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{z: z}, nil
}

func (l *zapLogger) slogger() *slog.Logger {
	return slog.New(zapslog.NewHandler(l.z.Core()))
}

func (l *zapLogger) Sync() {
	_ = l.z.Sync()
}
