package node_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/taurusgroup/confidential-identities/internal/test"
	"github.com/taurusgroup/confidential-identities/pkg/identity"
	"github.com/taurusgroup/confidential-identities/pkg/keys"
	"github.com/taurusgroup/confidential-identities/pkg/node"
	"github.com/taurusgroup/confidential-identities/pkg/party"
	"github.com/taurusgroup/confidential-identities/pkg/protocol"
	"github.com/taurusgroup/confidential-identities/pkg/transport"
	"github.com/taurusgroup/confidential-identities/pkg/tx"
	"github.com/taurusgroup/confidential-identities/protocols/keyrequest"
	"github.com/taurusgroup/confidential-identities/protocols/keysync"
)

type cluster struct {
	nodes  []*node.Node
	events []chan node.Event
	stores []*tx.MemoryStore
}

// newCluster starts n nodes on an in-memory network, each aware of all the others.
func newCluster(t *testing.T, n int) *cluster {
	ctx, cancel := context.WithCancel(context.Background())
	network := transport.NewNetwork()
	members := test.Nodes(t, n)

	c := &cluster{}
	g, ctx := errgroup.WithContext(ctx)
	for _, m := range members {
		endpoint, err := network.Join(m.Party)
		require.NoError(t, err)
		reg := identity.NewMemory()
		for _, other := range members {
			require.NoError(t, identity.SeedNetworkMap(ctx, reg, other.Party))
		}
		events := make(chan node.Event, 16)
		store := tx.NewMemoryStore()
		nd, err := node.New(endpoint, m.Keys, reg, node.WithLoader(store), node.WithEvents(events))
		require.NoError(t, err)

		c.nodes = append(c.nodes, nd)
		c.events = append(c.events, events)
		c.stores = append(c.stores, store)
		g.Go(func() error { return nd.Serve(ctx) })
	}
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, g.Wait())
	})
	return c
}

// wait returns the next inbound session event of node i.
func (c *cluster) wait(t *testing.T, i int) node.Event {
	select {
	case e := <-c.events[i]:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for session")
	}
	return node.Event{}
}

func resolve(t *testing.T, n *node.Node, k keys.PublicKey) (string, bool) {
	p, ok, err := n.Registry().Resolve(context.Background(), k)
	require.NoError(t, err)
	return string(p.ID), ok
}

func TestNode_RequestFreshKey(t *testing.T) {
	ctx := context.Background()
	c := newCluster(t, 2)
	a, b := c.nodes[0], c.nodes[1]

	k, err := a.RequestKey(ctx, b.Self().ID, keyrequest.Fresh{})
	require.NoError(t, err)
	e := c.wait(t, 1)
	require.NoError(t, e.Err)
	assert.Equal(t, keyrequest.ProtocolID, e.Protocol)

	owner, ok := resolve(t, a, k)
	require.True(t, ok)
	assert.Equal(t, string(b.Self().ID), owner)

	_, ok = resolve(t, b, k)
	assert.False(t, ok, "the responder does not register")
}

func TestNode_RequestAccountKey(t *testing.T) {
	ctx := context.Background()
	c := newCluster(t, 2)
	a, b := c.nodes[0], c.nodes[1]
	account := uuid.New()

	k1, err := a.RequestKey(ctx, b.Self().ID, keyrequest.ByAccount{Account: account})
	require.NoError(t, err)
	k2, err := a.RequestKey(ctx, b.Self().ID, keyrequest.ByAccount{Account: account})
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

// a obtains a key of b, then sends a transaction involving it to c, which learns who owns it.
func TestNode_SyncTransaction(t *testing.T) {
	ctx := context.Background()
	c := newCluster(t, 3)
	a, b, cc := c.nodes[0], c.nodes[1], c.nodes[2]

	kb, err := a.RequestKey(ctx, b.Self().ID, keyrequest.Fresh{})
	require.NoError(t, err)
	c.wait(t, 1)
	ka, err := a.Keys().GenerateKey(ctx, nil)
	require.NoError(t, err)

	prior, err := tx.New(nil, []tx.State{{Contract: "cash", Participants: []keys.PublicKey{kb}}})
	require.NoError(t, err)
	require.NoError(t, c.stores[0].RecordTransaction(ctx, prior))
	transfer, err := tx.New([]tx.StateRef{prior.Ref(0)}, []tx.State{
		{Contract: "cash", Participants: []keys.PublicKey{ka, cc.Self().OwningKey}},
	})
	require.NoError(t, err)

	sent, err := a.SyncTransaction(ctx, cc.Self().ID, transfer)
	require.NoError(t, err)
	// a cannot resolve its own fresh key, it was never registered
	require.Len(t, sent, 1)
	assert.Equal(t, identity.Mapping{Key: kb, Owner: b.Self()}, sent[0])

	// b answers the nested request of c first
	e := c.wait(t, 1)
	require.NoError(t, e.Err)
	e = c.wait(t, 2)
	require.NoError(t, e.Err)
	assert.Equal(t, keysync.ProtocolID, e.Protocol)
	assert.Equal(t, true, e.Result)

	owner, ok := resolve(t, cc, kb)
	require.True(t, ok)
	assert.Equal(t, string(b.Self().ID), owner)
	_, ok = resolve(t, cc, ka)
	assert.False(t, ok)
}

func TestNode_SyncOwnKey(t *testing.T) {
	ctx := context.Background()
	c := newCluster(t, 2)
	a, b := c.nodes[0], c.nodes[1]

	kb, err := a.RequestKey(ctx, b.Self().ID, keyrequest.Fresh{})
	require.NoError(t, err)
	c.wait(t, 1)

	_, err = a.SyncIdentities(ctx, b.Self().ID, []keys.PublicKey{kb})
	require.NoError(t, err)
	e := c.wait(t, 1)
	require.NoError(t, e.Err)
	assert.Equal(t, true, e.Result)

	owner, ok := resolve(t, b, kb)
	require.True(t, ok)
	assert.Equal(t, string(b.Self().ID), owner)
}

func TestNode_LyingInitiator(t *testing.T) {
	ctx := context.Background()
	c := newCluster(t, 3)
	a, b, cc := c.nodes[0], c.nodes[1], c.nodes[2]

	lie := test.RandomKey(t)
	ok, err := a.Registry().Register(ctx, lie, b.Self())
	require.NoError(t, err)
	require.True(t, ok)

	_, err = a.SyncIdentities(ctx, cc.Self().ID, []keys.PublicKey{lie})
	require.NoError(t, err, "the initiator finishes before the responder has checked")

	e := c.wait(t, 1)
	assert.ErrorIs(t, e.Err, protocol.ErrUnknownKey)
	e = c.wait(t, 2)
	assert.ErrorIs(t, e.Err, protocol.ErrUnknownKey)

	_, ok = resolve(t, cc, lie)
	assert.False(t, ok)
}

// a asserts that a key belongs to c, but with the owning key of b, the responder.
func TestNode_OwnerWithResponderKey(t *testing.T) {
	ctx := context.Background()
	c := newCluster(t, 3)
	a, b, cc := c.nodes[0], c.nodes[1], c.nodes[2]

	lie := test.RandomKey(t)
	_, err := a.Registry().Register(ctx, lie, party.Party{ID: cc.Self().ID, OwningKey: b.Self().OwningKey})
	require.NoError(t, err)

	_, err = a.SyncIdentities(ctx, b.Self().ID, []keys.PublicKey{lie})
	require.NoError(t, err)
	e := c.wait(t, 1)
	assert.ErrorIs(t, e.Err, protocol.ErrAuthentication)

	_, ok := resolve(t, b, lie)
	assert.False(t, ok)
}

func TestNode_NothingToSync(t *testing.T) {
	ctx := context.Background()
	c := newCluster(t, 2)
	a, b := c.nodes[0], c.nodes[1]

	sent, err := a.SyncIdentities(ctx, b.Self().ID, []keys.PublicKey{a.Self().OwningKey})
	require.NoError(t, err)
	assert.Empty(t, sent)
	e := c.wait(t, 1)
	require.NoError(t, e.Err)
	assert.Equal(t, false, e.Result)
}

func TestNode_UnknownPeer(t *testing.T) {
	c := newCluster(t, 1)
	_, err := c.nodes[0].RequestKey(context.Background(), "nobody", keyrequest.Fresh{})
	assert.ErrorIs(t, err, transport.ErrUnknownPeer)
}

func TestNew_IdentityMismatch(t *testing.T) {
	network := transport.NewNetwork()
	members := test.Nodes(t, 2)
	endpoint, err := network.Join(members[0].Party)
	require.NoError(t, err)
	_, err = node.New(endpoint, members[1].Keys, identity.NewMemory())
	assert.Error(t, err)
}
