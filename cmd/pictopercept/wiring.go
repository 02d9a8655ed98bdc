package main

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"pictopercept/internal/config"
	"pictopercept/internal/database"
	"pictopercept/internal/sink"
	"pictopercept/internal/stimulus"
	"pictopercept/internal/survey"
)

func resolve(projectRoot, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(projectRoot, path)
}

func newProvider(projectRoot string, conf config.StimuliConfig) stimulus.Provider {
	if conf.Source == "manifest" {
		return stimulus.NewManifestProvider(resolve(projectRoot, conf.Manifest))
	}
	return stimulus.NewDirProvider(resolve(projectRoot, conf.Dir), conf.Suffix)
}

// newSink opens the configured response sink. The returned close function
// is never nil.
func newSink(projectRoot string, conf *config.Config, log *zap.Logger) (sink.Sink, func() error, error) {
	switch conf.Sink.Driver {
	case "postgres":
		db, err := database.Open(conf.Database, log)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get database handle: %w", err)
		}
		return sink.NewGormSink(db), sqlDB.Close, nil
	case "sqlite":
		path := resolve(projectRoot, conf.Sink.SQLitePath)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
		s, err := sink.OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		log.Info("Using SQLite response sink", zap.String("path", path))
		return s, s.Close, nil
	default:
		log.Warn("Using in-memory response sink; responses are lost on restart")
		return sink.NewMemorySink(), func() error { return nil }, nil
	}
}

func flusherOptions(conf config.SinkConfig) sink.Options {
	return sink.Options{
		MaxAttempts: conf.MaxAttempts,
		Backoff:     conf.Backoff,
		MaxBackoff:  conf.MaxBackoff,
		Concurrency: conf.Concurrency,
	}
}

func limits(conf config.SurveyConfig) survey.Limits {
	return survey.Limits{SessionLength: conf.SessionLength, MinRecords: conf.MinRecords}
}
