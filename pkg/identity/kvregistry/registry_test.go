package kvregistry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taurusgroup/confidential-identities/internal/test"
)

func TestRegistry(t *testing.T) {
	r, err := OpenMemory()
	require.NoError(t, err)
	defer r.Close()
	test.RegistrySuite(t, r)
}

func TestRegistry_Persistent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "registry")
	alice := test.RandomParty(t, "alice")
	k := test.RandomKey(t)

	r, err := Open(path)
	require.NoError(t, err)
	ok, err := r.Register(ctx, k, alice)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, r.Close())

	r, err = Open(path)
	require.NoError(t, err)
	defer r.Close()
	owner, found, err := r.Resolve(ctx, k)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, alice, owner)

	ok, err = r.Register(ctx, k, test.RandomParty(t, "bob"))
	require.NoError(t, err)
	assert.False(t, ok)
}
