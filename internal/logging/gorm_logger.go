package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormZapLogger sends gorm's log output and query traces to zap.
type GormZapLogger struct {
	log           *zap.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// NewGormZapLogger logs failed and slow queries only; flushes issue one
// insert per record, which is too much for routine logging.
func NewGormZapLogger(log *zap.Logger) *GormZapLogger {
	return &GormZapLogger{
		log:           log.Named("gorm"),
		level:         gormlogger.Warn,
		slowThreshold: 200 * time.Millisecond,
	}
}

// WithSlowThreshold returns a copy that reports queries slower than d.
func (l *GormZapLogger) WithSlowThreshold(d time.Duration) *GormZapLogger {
	c := *l
	c.slowThreshold = d
	return &c
}

func (l *GormZapLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *l
	c.level = level
	return &c
}

func (l *GormZapLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.logf(gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *GormZapLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.logf(gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *GormZapLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.logf(gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *GormZapLogger) logf(enabled gormlogger.LogLevel, level zapcore.Level, msg string, data []interface{}) {
	if l.level < enabled {
		return
	}
	if ce := l.log.Check(level, fmt.Sprintf(msg, data...)); ce != nil {
		ce.Write()
	}
}

// Trace reports a finished query. Lookup misses are not errors.
func (l *GormZapLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := l.slowThreshold > 0 && elapsed > l.slowThreshold

	var level zapcore.Level
	var msg string
	switch {
	case failed && l.level >= gormlogger.Error:
		level, msg = zapcore.ErrorLevel, "Query failed"
	case slow && l.level >= gormlogger.Warn:
		level, msg = zapcore.WarnLevel, "Slow query"
	case l.level >= gormlogger.Info:
		level, msg = zapcore.DebugLevel, "Query"
	default:
		return
	}

	sql, rows := fc()
	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", sql),
	}
	if failed {
		fields = append(fields, zap.Error(err))
	}
	l.log.Check(level, msg).Write(fields...)
}
