package heartbeat

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck_MissingFile(t *testing.T) {
	gate := NewFile(filepath.Join(t.TempDir(), "heartbeat.html"))
	assert.Error(t, gate.Check(context.Background()))
}

func TestUpdate_WritesTimestampedContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.html")
	gate := NewFile(path)
	gate.now = func() time.Time {
		return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	}

	require.NoError(t, gate.Update(context.Background()))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "2024-03-01 12:00:00 UTC")

	assert.NoError(t, gate.Check(context.Background()))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not survive the rename")
}

func TestUpdate_OverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.html")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	gate := NewFile(path)
	require.NoError(t, gate.Update(context.Background()))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "stale")
}

func TestInit(t *testing.T) {
	t.Run("creates file and parent dir when missing", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "heartbeat.html")
		gate := NewFile(path)

		require.NoError(t, gate.Init())
		assert.NoError(t, gate.Check(context.Background()))
	})

	t.Run("leaves existing file untouched", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "heartbeat.html")
		require.NoError(t, os.WriteFile(path, []byte("existing"), 0o644))

		gate := NewFile(path)
		require.NoError(t, gate.Init())

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "existing", string(content))
	})
}
