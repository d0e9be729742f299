package logger

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud"})
	assert.Error(t, err)
}

func TestJSONFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	child := l.Component("scanner").With(String("env", "test"))
	child.Debug("hidden")
	child.Info("scan done",
		Int("found", 2),
		Float64("leverage", 4.5),
		Bool("deferred", false),
		Duration("took_ms", 1500*time.Millisecond),
		Strings("instruments", []string{"A", "B"}),
		Error(errors.New("boom")),
	)
	child.Warn("no error", Error(nil))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "info", first["level"])
	assert.Equal(t, "scan done", first["message"])
	assert.Equal(t, "scanner", first["component"])
	assert.Equal(t, "test", first["env"])
	assert.Equal(t, 2.0, first["found"])
	assert.Equal(t, 4.5, first["leverage"])
	assert.Equal(t, false, first["deferred"])
	assert.Equal(t, 1500.0, first["took_ms"])
	assert.Equal(t, "A, B", first["instruments"])
	assert.Equal(t, "boom", first["error"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.NotContains(t, second, "error")
}
