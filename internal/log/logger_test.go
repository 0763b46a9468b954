// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure_WritesServiceAndComponent(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "astrogate", Version: "v9"})

	l := WithComponent("capture")
	l.Debug().Str(FieldCaptureID, "c-1").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "astrogate", entry["service"])
	assert.Equal(t, "v9", entry["version"])
	assert.Equal(t, "capture", entry[FieldComponent])
	assert.Equal(t, "c-1", entry[FieldCaptureID])
}

func TestSetLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	var buf bytes.Buffer
	Configure(Config{Level: "info", Output: &buf})

	require.NoError(t, SetLevel("warn"))
	L().Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	require.Error(t, SetLevel("shouting"))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}
