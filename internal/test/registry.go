package test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taurusgroup/confidential-identities/pkg/identity"
	"github.com/taurusgroup/confidential-identities/pkg/keys"
	"github.com/taurusgroup/confidential-identities/pkg/party"
)

// RegistrySuite checks the behaviour every identity.Registry must have.
// reg must be empty.
func RegistrySuite(t *testing.T, reg identity.Registry) {
	ctx := context.Background()
	alice, bob := RandomParty(t, "alice"), RandomParty(t, "bob")

	t.Run("resolve unknown", func(t *testing.T) {
		_, ok, err := reg.Resolve(ctx, RandomKey(t))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("register is idempotent", func(t *testing.T) {
		k := RandomKey(t)
		ok, err := reg.Register(ctx, k, alice)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = reg.Register(ctx, k, alice)
		require.NoError(t, err)
		assert.True(t, ok)

		owner, found, err := reg.Resolve(ctx, k)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, alice, owner)
	})

	t.Run("conflicting owner is refused", func(t *testing.T) {
		k := RandomKey(t)
		ok, err := reg.Register(ctx, k, alice)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = reg.Register(ctx, k, bob)
		require.NoError(t, err)
		assert.False(t, ok)

		owner, found, err := reg.Resolve(ctx, k)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, alice, owner)
	})

	t.Run("same name different key is a different owner", func(t *testing.T) {
		k := RandomKey(t)
		impostor := RandomParty(t, alice.ID)
		ok, err := reg.Register(ctx, k, alice)
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = reg.Register(ctx, k, impostor)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("invalid mapping", func(t *testing.T) {
		_, err := reg.Register(ctx, keys.PublicKey{}, alice)
		assert.ErrorIs(t, err, identity.ErrInvalidMapping)
		_, err = reg.Register(ctx, RandomKey(t), party.Party{ID: "nobody"})
		assert.ErrorIs(t, err, identity.ErrInvalidMapping)
	})

	t.Run("concurrent registration has one winner", func(t *testing.T) {
		k := RandomKey(t)
		owners := []party.Party{alice, bob, RandomParty(t, "carol"), RandomParty(t, "dave")}
		results := make([]bool, len(owners))
		var wg sync.WaitGroup
		wg.Add(len(owners))
		for i := range owners {
			i := i
			go func() {
				defer wg.Done()
				ok, err := reg.Register(ctx, k, owners[i])
				assert.NoError(t, err)
				results[i] = ok
			}()
		}
		wg.Wait()

		winners := 0
		for _, ok := range results {
			if ok {
				winners++
			}
		}
		assert.Equal(t, 1, winners)
	})

	t.Run("mappings are listed in key order", func(t *testing.T) {
		all, err := reg.Mappings(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, all)
		sorted := append([]identity.Mapping(nil), all...)
		identity.SortMappings(sorted)
		assert.Equal(t, sorted, all)
	})

	t.Run("network map", func(t *testing.T) {
		carol := RandomParty(t, "carol")
		require.NoError(t, identity.SeedNetworkMap(ctx, reg, carol))
		p, ok, err := identity.WellKnown(ctx, reg, carol.OwningKey)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, carol, p)

		confidential := RandomKey(t)
		_, err = reg.Register(ctx, confidential, carol)
		require.NoError(t, err)
		_, ok, err = identity.WellKnown(ctx, reg, confidential)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
