package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLevel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Options{Level: "warn", Console: &buf, NoColor: true}))

	Info().Msg("hidden")
	Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Equal(t, zerolog.WarnLevel, Log.GetLevel())
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	err := Init(Options{Level: "loud"})
	require.Error(t, err)
}

func TestInitWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pipeline.log")
	var buf bytes.Buffer
	require.NoError(t, Init(Options{Level: "debug", File: path, Console: &buf, NoColor: true}))
	t.Cleanup(func() { _ = CloseFileWriter() })

	assert.Equal(t, path, FilePath())

	stepLog := WithField("step", "checkout")
	stepLog.Info().Msg("started")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"step":"checkout"`)
	assert.Contains(t, buf.String(), "started")
}
