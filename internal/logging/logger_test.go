package logger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"pictopercept/internal/config"
)

func TestInit_WritesOneFilePerLevel(t *testing.T) {
	root := t.TempDir()
	log, err := Init(root, config.LoggingConfig{Directory: "logs", MaxSize: 1, MaxBackups: 1, MaxAge: 1})
	require.NoError(t, err)

	log.Info("session started", zap.String("user_id", "u"))
	log.Warn("flush left unconfirmed records")
	_ = log.Sync()

	day := time.Now().Format("2006-01-02")
	info, err := os.ReadFile(filepath.Join(root, "logs", day+"-info.log"))
	require.NoError(t, err)
	assert.Contains(t, string(info), "session started")
	assert.NotContains(t, string(info), "unconfirmed")

	warn, err := os.ReadFile(filepath.Join(root, "logs", day+"-warn.log"))
	require.NoError(t, err)
	assert.Contains(t, string(warn), "unconfirmed")
}

func TestGormZapLogger_Trace(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewGormZapLogger(zap.New(core))
	ctx := context.Background()
	sql := func() (string, int64) { return "INSERT INTO responses", 1 }

	l.Trace(ctx, time.Now(), sql, nil)
	assert.Equal(t, 0, logs.Len(), "fast queries are quiet at Warn")

	l.Trace(ctx, time.Now(), sql, gorm.ErrRecordNotFound)
	assert.Equal(t, 0, logs.Len())

	l.Trace(ctx, time.Now(), sql, errors.New("duplicate key"))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Query failed", logs.All()[0].Message)

	l.Trace(ctx, time.Now().Add(-time.Second), sql, nil)
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "Slow query", logs.All()[1].Message)

	verbose := l.LogMode(gormlogger.Info)
	verbose.Trace(ctx, time.Now(), sql, nil)
	assert.Equal(t, 3, logs.Len())

	l.LogMode(gormlogger.Silent).Trace(ctx, time.Now(), sql, errors.New("ignored"))
	assert.Equal(t, 3, logs.Len())
}

func TestGormZapLogger_SlowThreshold(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewGormZapLogger(zap.New(core)).WithSlowThreshold(time.Hour)
	sql := func() (string, int64) { return "SELECT 1", 1 }

	l.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	assert.Zero(t, logs.Len())

	l.Warn(context.Background(), "pool exhausted after %d tries", 3)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "pool exhausted after 3 tries", logs.All()[0].Message)
}
