package encounter

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/encounter/pkg/clock"
	"github.com/blockberries/encounter/pkg/transport/memtransport"
)

func TestDumpState_Idle(t *testing.T) {
	a := newTestPeer(t, memtransport.NewHub(), clock.NewFake(testEpoch), "a", nil)

	state := a.node.DumpState()
	assert.Equal(t, "peer-a", state.LocalPeer)
	assert.True(t, state.Started)
	assert.Empty(t, state.Connection.ActivePeer)
	assert.Equal(t, "Disconnected", state.Connection.State)
	assert.False(t, state.Session.Active)
	assert.Equal(t, "unknown", state.Session.Quality)
	assert.Equal(t, "drop-oldest", state.Events.Policy)
	assert.Equal(t, DefaultCooldownWindow.String(), state.Config.CooldownWindow)
	assert.Equal(t, testEpoch.Format("2006-01-02T15:04:05Z07:00"), state.CapturedAt)
}

func TestDumpState_Connected(t *testing.T) {
	a, _, _ := connectedPair(t)
	_, err := a.node.BeginSession()
	require.NoError(t, err)

	state := a.node.DumpState()
	assert.Equal(t, "peer-b", state.Connection.ActivePeer)
	assert.Equal(t, "Established", state.Connection.State)
	assert.Equal(t, "initiator", state.Connection.Role)
	assert.True(t, state.Session.Active)
	assert.NotEmpty(t, state.Session.ID)
}

func TestDumpState_NotStarted(t *testing.T) {
	tr, err := memtransport.NewHub().New("peer-a", "")
	require.NoError(t, err)
	n, err := New(tr, NewConfig(""))
	require.NoError(t, err)

	// Not started: state is read directly.
	state := n.DumpState()
	assert.False(t, state.Started)
	assert.False(t, state.Connection.Discovering)
}

func TestDumpStateJSON(t *testing.T) {
	a := newTestPeer(t, memtransport.NewHub(), clock.NewFake(testEpoch), "a", nil)

	out, err := a.node.DumpStateJSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "peer-a", decoded["local_peer"])
	assert.Contains(t, decoded, "connection")
	assert.Contains(t, decoded, "session")
	assert.Contains(t, decoded, "events")
}

func TestDumpStateString(t *testing.T) {
	a, _, _ := connectedPair(t)

	out := a.node.DumpStateString()
	for _, section := range []string{"IDENTITY:", "CONNECTION:", "SESSION:", "EVENTS:", "CONFIGURATION:"} {
		assert.True(t, strings.Contains(out, section), "missing section %s", section)
	}
	assert.Contains(t, out, "peer-b [Established, initiator]")
	assert.Contains(t, out, "(inactive)")
}
