package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarningLevel, false},
		{"warn", WarningLevel, false},
		{"error", ErrorLevel, false},
		{"verbose", InvalidLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoggerLevels(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := New(WarningLevel, buf)

	logger.Infof("hidden %d", 1)
	assert.Empty(t, buf.String())

	logger.Warnf("shown %d", 2)
	assert.Contains(t, buf.String(), "shown 2")
	assert.Contains(t, buf.String(), "WARN")
}

func TestLoggerSetLevel(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := New(ErrorLevel, buf)
	assert.Equal(t, ErrorLevel, logger.LogLevel())

	logger.Debug("before")
	assert.Empty(t, buf.String())

	logger.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, logger.LogLevel())
	logger.Debug("after")
	assert.Contains(t, buf.String(), "after")
}

func TestLoggerWithSharesLevel(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := NewWithFormat(InfoLevel, FormatJSON, buf)
	child := logger.With("actor", ":00000001(Manifest)")

	logger.SetLevel(ErrorLevel)
	child.Info("dropped")
	assert.Empty(t, buf.String())

	child.Error("kept")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, ":00000001(Manifest)", entry["actor"])
}

func TestDiscardLogger(t *testing.T) {
	assert.Equal(t, InvalidLevel, DiscardLogger.LogLevel())
	DiscardLogger.Error("nothing")
}
