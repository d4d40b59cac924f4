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
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{"DEBUG", DebugLevel},
		{" warn ", WarnLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"", InfoLevel},
		{"verbose", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestContextLoggers(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

	l := WithCycleID(WithComponent("engine"), "cycle-1")
	l.Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "engine", line["component"])
	assert.Equal(t, "cycle-1", line["cycle_id"])
	assert.Equal(t, "hello", line["message"])

	buf.Reset()
	l2 := WithChannel("shroud")
	l2.Debug().Msg("live")
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shroud", line["channel"])

	buf.Reset()
	l3 := WithSurfaceID("tab-7")
	l3.Warn().Msg("gone")
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "tab-7", line["surface_id"])
}
