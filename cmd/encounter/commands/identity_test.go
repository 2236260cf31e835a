package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentity_CreatedOnceThenReused(t *testing.T) {
	dir := t.TempDir()

	first, err := loadOrCreateIdentity(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, first.Token)

	second, err := loadOrCreateIdentity(dir)
	require.NoError(t, err)
	assert.Equal(t, first.Key, second.Key)
	assert.Equal(t, first.Token, second.Token)

	a, err := first.PeerID()
	require.NoError(t, err)
	b, err := second.PeerID()
	require.NoError(t, err)
	assert.Equal(t, a, b)

	info, err := os.Stat(filepath.Join(dir, keyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestIdentity_CorruptKey(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, keyFile), []byte("zz"), 0o600))

	_, err := loadOrCreateIdentity(dir)
	assert.Error(t, err)
}

func TestIdentity_EmptyToken(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, tokenFile), []byte("\n"), 0o600))

	_, err := loadOrCreateIdentity(dir)
	assert.Error(t, err)
}
