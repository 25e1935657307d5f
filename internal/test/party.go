package test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taurusgroup/confidential-identities/pkg/keys"
	"github.com/taurusgroup/confidential-identities/pkg/party"
)

// PartyIDs returns a party.IDSlice (sorted) with IDs represented as simple strings.
func PartyIDs(n int) party.IDSlice {
	baseString := ""
	ids := make(party.IDSlice, n)
	for i := range ids {
		if i%26 == 0 && i > 0 {
			baseString += "a"
		}
		ids[i] = party.ID(baseString + string('a'+rune(i%26)))
	}
	return party.NewIDSlice(ids)
}

// RandomKey returns a new random public key.
func RandomKey(t testing.TB) keys.PublicKey {
	sk, err := keys.GeneratePrivateKey()
	require.NoError(t, err)
	return sk.PublicKey()
}

// RandomParty returns a party with the given name and a random owning key.
func RandomParty(t testing.TB, id party.ID) party.Party {
	return party.Party{ID: id, OwningKey: RandomKey(t)}
}

// Node is a party together with the key manager holding its identity key.
type Node struct {
	party.Party
	Keys *keys.Store
}

// Nodes returns n nodes with IDs from PartyIDs, each with a random key store.
func Nodes(t testing.TB, n int) []Node {
	nodes := make([]Node, 0, n)
	for _, id := range PartyIDs(n) {
		store, err := keys.NewRandomStore()
		require.NoError(t, err)
		nodes = append(nodes, Node{Party: party.Party{ID: id, OwningKey: store.Identity()}, Keys: store})
	}
	return nodes
}
