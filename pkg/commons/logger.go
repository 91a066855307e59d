// Package commons holds small cross-cutting primitives shared by every
// package in the runtime: structured logging and process environment.
package commons

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the logging contract used throughout the runtime. It mirrors
// zap's SugaredLogger surface so call sites can log with or without
// structured key/value pairs.
type Logger interface {
	Debugf(template string, args ...any)
	Infof(template string, args ...any)
	Warnf(template string, args ...any)
	Errorf(template string, args ...any)
	Fatalf(template string, args ...any)

	Infow(msg string, kv ...any)
	Warnw(msg string, kv ...any)
	Errorw(msg string, kv ...any)

	With(kv ...any) Logger
	Sync() error
}

type zapLogger struct {
	s *zap.SugaredLogger
}

func (l *zapLogger) Debugf(t string, a ...any) { l.s.Debugf(t, a...) }
func (l *zapLogger) Infof(t string, a ...any)  { l.s.Infof(t, a...) }
func (l *zapLogger) Warnf(t string, a ...any)  { l.s.Warnf(t, a...) }
func (l *zapLogger) Errorf(t string, a ...any) { l.s.Errorf(t, a...) }
func (l *zapLogger) Fatalf(t string, a ...any) { l.s.Fatalf(t, a...) }

func (l *zapLogger) Infow(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l *zapLogger) Warnw(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l *zapLogger) Errorw(msg string, kv ...any) { l.s.Errorw(msg, kv...) }

func (l *zapLogger) With(kv ...any) Logger {
	return &zapLogger{s: l.s.With(kv...)}
}

func (l *zapLogger) Sync() error { return l.s.Sync() }

// NewApplicationLogger builds the process-wide Logger. In production
// environments it writes JSON to a rotating file via lumberjack and to
// stderr; in development it writes human-readable console output to
// stderr only.
func NewApplicationLogger() (Logger, error) {
	env := FromEnvironmentStr(os.Getenv("RUNTIME_ENV"))

	var core zapcore.Core
	if env == PRODUCTION {
		encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		rotating := zapcore.AddSync(&lumberjack.Logger{
			Filename:   "runtime-node.log",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		})
		core = zapcore.NewTee(
			zapcore.NewCore(encoder, rotating, zap.InfoLevel),
			zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), zap.WarnLevel),
		)
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		core = zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(os.Stderr), zap.DebugLevel)
	}

	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &zapLogger{s: base.Sugar()}, nil
}

// NewTestLogger returns a Logger suitable for unit tests: console output,
// debug level, no file I/O.
func NewTestLogger() Logger {
	cfg := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(os.Stdout), zap.DebugLevel)
	return &zapLogger{s: zap.New(core).Sugar()}
}
