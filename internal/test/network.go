package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taurusgroup/confidential-identities/pkg/party"
	"github.com/taurusgroup/confidential-identities/pkg/transport"
)

// Pair is a session between two parties on a private in-memory network.
// A is the side that opened the session.
type Pair struct {
	Network *transport.Network
	A, B    transport.Session
}

// NewPair connects a to b for protocolID.
func NewPair(t testing.TB, a, b party.Party, protocolID string) *Pair {
	ctx := context.Background()
	network := transport.NewNetwork()
	ea, err := network.Join(a)
	require.NoError(t, err)
	eb, err := network.Join(b)
	require.NoError(t, err)

	sa, err := ea.Open(ctx, b.ID, protocolID)
	require.NoError(t, err)
	sb, err := eb.Accept(ctx)
	require.NoError(t, err)
	return &Pair{Network: network, A: sa, B: sb}
}
