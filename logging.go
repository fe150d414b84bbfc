package mysql

import "go.uber.org/zap"

// Logger is the logging seam used throughout the session and pool.
// It mirrors the teacher's minimal logging interface so callers can
// plug in their own sink without pulling zap into their import graph.
type Logger interface {
	Print(v ...any)
}

// zapLogger adapts a *zap.Logger to Logger.
type zapLogger struct {
	l *zap.SugaredLogger
}

func (z *zapLogger) Print(v ...any) {
	z.l.Info(v...)
}

// NewZapLogger wraps an existing *zap.Logger as a Logger.
func NewZapLogger(l *zap.Logger) Logger {
	return &zapLogger{l: l.Sugar()}
}

var defaultLogger Logger = newDefaultLogger()

func newDefaultLogger() Logger {
	l, err := zap.NewProduction()
	if err != nil {
		// zap.NewProduction only fails on a broken encoder config;
		// fall back to a no-op logger rather than panic at package
		// init time.
		return &nopLogger{}
	}
	return &zapLogger{l: l.Sugar()}
}

type nopLogger struct{}

func (*nopLogger) Print(v ...any) {}
