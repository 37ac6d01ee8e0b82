// internal/storage/postgres/logger.go
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/tracelog"
	"go.uber.org/zap"
)

// pgxLogger направляет журнал запросов pgx в zap.
type pgxLogger struct {
	zapLogger *zap.Logger
}

func newPgxLogger(zapLogger *zap.Logger) tracelog.Logger {
	return &pgxLogger{zapLogger: zapLogger.Named("pgx")}
}

// Log реализация интерфейса tracelog.Logger
func (l *pgxLogger) Log(_ context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	fields := make([]zap.Field, 0, len(data))
	for k, v := range data {
		if k == "args" {
			// аргументы содержат зашифрованные ключи
			continue
		}
		fields = append(fields, zap.Any(k, v))
	}

	switch level {
	case tracelog.LogLevelError:
		l.zapLogger.Error(msg, fields...)
	case tracelog.LogLevelWarn:
		l.zapLogger.Warn(msg, fields...)
	case tracelog.LogLevelInfo:
		l.zapLogger.Info(msg, fields...)
	default:
		l.zapLogger.Debug(msg, fields...)
	}
}
