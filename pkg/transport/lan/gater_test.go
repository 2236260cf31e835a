package lan

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type setBlocker map[string]bool

func (b setBlocker) IsBlocked(id string) bool { return b[id] }

type mockConn struct {
	network.Conn
	remote peer.ID
}

func (c *mockConn) RemotePeer() peer.ID { return c.remote }

func generateTestKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return priv
}

func testPeerID(t *testing.T) peer.ID {
	t.Helper()
	priv, err := crypto.UnmarshalEd25519PrivateKey(generateTestKey(t))
	require.NoError(t, err)
	id, err := peer.IDFromPrivateKey(priv)
	require.NoError(t, err)
	return id
}

func TestConnectionGater_BlocksListedPeer(t *testing.T) {
	blocked := testPeerID(t)
	allowed := testPeerID(t)
	g := NewConnectionGater(setBlocker{blocked.String(): true})

	assert.False(t, g.InterceptPeerDial(blocked))
	assert.True(t, g.InterceptPeerDial(allowed))
	assert.False(t, g.InterceptAddrDial(blocked, nil))
	assert.True(t, g.InterceptAddrDial(allowed, nil))
	assert.True(t, g.InterceptAccept(nil))
	assert.False(t, g.InterceptSecured(network.DirInbound, blocked, nil))
	assert.True(t, g.InterceptSecured(network.DirOutbound, allowed, nil))

	ok, _ := g.InterceptUpgraded(&mockConn{remote: blocked})
	assert.False(t, ok)
	ok, _ = g.InterceptUpgraded(&mockConn{remote: allowed})
	assert.True(t, ok)
}

func TestConnectionGater_NilBlockerAllowsAll(t *testing.T) {
	g := NewConnectionGater(nil)
	p := testPeerID(t)

	assert.True(t, g.InterceptPeerDial(p))
	assert.True(t, g.InterceptSecured(network.DirInbound, p, nil))
}
