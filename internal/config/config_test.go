package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, v, err := Load(t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, v)

	assert.Equal(t, "5050", cfg.Server.Port)
	assert.Equal(t, 65*time.Second, cfg.Survey.SessionLength)
	assert.Equal(t, 2, cfg.Survey.MinRecords)
	assert.Equal(t, "choice_respondent", cfg.Survey.RespondentParam)
	assert.True(t, cfg.Survey.RequireFullSchedule)
	assert.Equal(t, "postgres", cfg.Sink.Driver)
	assert.Equal(t, 200*time.Millisecond, cfg.Sink.Backoff)
	assert.Equal(t, time.Minute, cfg.Reaper.Interval)
}

func TestLoad_FileAndEnv(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "config"), 0o755))
	yaml := `
server:
  port: "8080"
survey:
  session_length: 90s
sink:
  driver: sqlite
  concurrency: 4
`
	require.NoError(t, os.WriteFile(filepath.Join(root, "config", "config.yaml"), []byte(yaml), 0o644))
	t.Setenv("PICTO_SERVER_PORT", "9090")

	cfg, _, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port, "environment overrides the file")
	assert.Equal(t, 90*time.Second, cfg.Survey.SessionLength)
	assert.Equal(t, "sqlite", cfg.Sink.Driver)
	assert.Equal(t, 4, cfg.Sink.Concurrency)
}

func TestLoad_InvalidDriver(t *testing.T) {
	t.Setenv("PICTO_SINK_DRIVER", "firestore")
	_, _, err := Load(t.TempDir())
	assert.ErrorContains(t, err, "unknown sink driver")
}

func TestLoad_MinRecordsBelowOneTrial(t *testing.T) {
	for _, v := range []string{"0", "1", "-3"} {
		t.Setenv("PICTO_SURVEY_MIN_RECORDS", v)
		_, _, err := Load(t.TempDir())
		assert.ErrorContains(t, err, "survey.min_records must be at least 2", "min_records=%s", v)
	}

	t.Setenv("PICTO_SURVEY_MIN_RECORDS", "2")
	cfg, _, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Survey.MinRecords)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "x", SSLMode: "disable"}
	assert.Equal(t, "host=db user=u password=p dbname=x port=5432 sslmode=disable TimeZone=UTC", d.DSN())
}
