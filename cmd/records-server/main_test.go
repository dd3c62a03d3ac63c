package main

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/records/internal/config"
	"github.com/ehr/records/internal/platform/db"
	"github.com/ehr/records/internal/platform/events"
	"github.com/ehr/records/internal/platform/middleware"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := rootCmd()

	for _, path := range [][]string{
		{"serve"},
		{"migrate", "up"},
		{"migrate", "status"},
		{"user", "deactivate"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, strings.Join(path, " "))
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}

	up, _, err := root.Find([]string{"migrate", "up"})
	require.NoError(t, err)
	dir, err := up.Flags().GetString("dir")
	require.NoError(t, err)
	assert.Equal(t, "./migrations", dir)
	schema, err := up.Flags().GetString("schema")
	require.NoError(t, err)
	assert.Equal(t, "public", schema)
}

func TestUserDeactivate_RequiresEmail(t *testing.T) {
	root := rootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"user", "deactivate"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--email is required")
}

func TestPrintStatus(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	var buf bytes.Buffer
	printStatus(&buf, []db.MigrationStatus{
		{Version: 1, Name: "001_core.sql", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "002_indexes.sql"},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "VERSION"))
	assert.Contains(t, lines[2], "001_core.sql")
	assert.Contains(t, lines[2], "applied")
	assert.Contains(t, lines[2], "2026-03-04 05:06:07")
	assert.Contains(t, lines[3], "pending")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	prod := newLogger("production", &buf)
	prod.Info().Msg("hello")
	assert.True(t, strings.HasPrefix(buf.String(), "{"), "expected JSON output, got %q", buf.String())

	buf.Reset()
	dev := newLogger("development", &buf)
	dev.Info().Msg("hello")
	assert.False(t, strings.HasPrefix(buf.String(), "{"), "expected console output, got %q", buf.String())
	assert.Contains(t, buf.String(), "hello")
}

func TestLoginCounter(t *testing.T) {
	counter, closeFn, err := loginCounter(&config.Config{}, zerolog.Nop())
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &middleware.MemoryAttemptCounter{}, counter)

	counter, closeFn, err = loginCounter(&config.Config{RedisURL: "redis://localhost:6379/0"}, zerolog.Nop())
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &middleware.RedisAttemptCounter{}, counter)

	_, _, err = loginCounter(&config.Config{RedisURL: "://not-a-url"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestEventPublisher_DefaultsToLog(t *testing.T) {
	p, err := eventPublisher(&config.Config{KafkaTopic: "appointment_events"}, zerolog.Nop())
	require.NoError(t, err)
	defer p.Close()
	assert.IsType(t, &events.LogPublisher{}, p)
}
