package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroLogger_FieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "info")
	require.NoError(t, err)

	logger.Debug("hidden", "k", "v")
	logger.Info("session started", "peer", "peer-b", "messages", 3)
	logger.Warn("slow")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "session started")
	assert.Contains(t, out, "peer=peer-b")
	assert.Contains(t, out, "messages=3")
	assert.Contains(t, out, "slow")
}

func TestZeroLogger_BadLevel(t *testing.T) {
	_, err := newLogger(&bytes.Buffer{}, "loud")
	assert.Error(t, err)
}
