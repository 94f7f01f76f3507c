package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter(t *testing.T) {
	t.Run("EmitsJSON", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter("info", &buf)

		log.Info("hello", "component", "test")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "hello", entry["msg"])
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "test", entry["component"])
	})

	t.Run("RespectsLevel", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter("warn", &buf)

		log.Info("dropped")
		assert.Zero(t, buf.Len())

		log.Warn("kept")
		assert.NotZero(t, buf.Len())
	})

	t.Run("UnknownLevelFallsBackToInfo", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter("loud", &buf)

		log.Debug("dropped")
		assert.Zero(t, buf.Len())

		log.Info("kept")
		assert.NotZero(t, buf.Len())
	})
}
