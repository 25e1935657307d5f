package keyrequest

import (
	"context"
	"errors"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taurusgroup/confidential-identities/internal/test"
	"github.com/taurusgroup/confidential-identities/pkg/claim"
	"github.com/taurusgroup/confidential-identities/pkg/identity"
	"github.com/taurusgroup/confidential-identities/pkg/keys"
	"github.com/taurusgroup/confidential-identities/pkg/party"
	"github.com/taurusgroup/confidential-identities/pkg/protocol"
)

type setup struct {
	alice, bob test.Node
	registry   *identity.Memory
}

func newSetup(t *testing.T) *setup {
	nodes := test.Nodes(t, 2)
	reg := identity.NewMemory()
	require.NoError(t, identity.SeedNetworkMap(context.Background(), reg, nodes[0].Party, nodes[1].Party))
	return &setup{alice: nodes[0], bob: nodes[1], registry: reg}
}

// run has alice request a key from bob. expectedBob is who alice thinks bob is.
func (s *setup) run(t *testing.T, selector Selector, expectedBob party.Party, intercept func(*protocol.Message)) (test.Outcome, test.Outcome) {
	pair := test.NewPair(t, s.alice.Party, s.bob.Party, ProtocolID)
	if intercept != nil {
		pair.Network.Intercept(intercept)
	}
	return pair.Run(context.Background(),
		StartRequest(s.alice.Party, expectedBob, selector, s.registry),
		StartRespond(s.bob.Party, s.alice.Party, s.bob.Keys),
	)
}

func checkOutput(t *testing.T, s *setup, initiator, responder test.Outcome) keys.PublicKey {
	require.NoError(t, initiator.Err)
	require.NoError(t, responder.Err)

	received, ok := initiator.Result.(*claim.Signed)
	require.True(t, ok)
	sent, ok := responder.Result.(*claim.Signed)
	require.True(t, ok)
	assert.Equal(t, sent, received)

	c, err := claim.Verify(received, s.bob.OwningKey)
	require.NoError(t, err)

	owned, err := s.bob.Keys.OwnsKey(context.Background(), c.Key)
	require.NoError(t, err)
	assert.True(t, owned, "the responder holds the claimed key")

	owner, ok, err := s.registry.Resolve(context.Background(), c.Key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, s.bob.Party, owner)
	return c.Key
}

func TestKeyRequest_Selectors(t *testing.T) {
	s := newSetup(t)
	known, err := s.bob.Keys.GenerateKey(context.Background(), nil)
	require.NoError(t, err)

	tests := []struct {
		name     string
		selector Selector
	}{
		{"fresh", Fresh{}},
		{"account", ByAccount{Account: uuid.New()}},
		{"known key", ByKnownKey{Key: known}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := s.run(t, tt.selector, s.bob.Party, nil)
			key := checkOutput(t, s, a, b)
			if k, ok := tt.selector.(ByKnownKey); ok {
				assert.Equal(t, k.Key, key)
			}
		})
	}
}

func TestKeyRequest_Fresh(t *testing.T) {
	s := newSetup(t)
	a, b := s.run(t, Fresh{}, s.bob.Party, nil)
	k1 := checkOutput(t, s, a, b)
	a, b = s.run(t, Fresh{}, s.bob.Party, nil)
	k2 := checkOutput(t, s, a, b)
	assert.NotEqual(t, k1, k2)
}

func TestKeyRequest_AccountDeterminism(t *testing.T) {
	s := newSetup(t)
	u1, u2 := uuid.New(), uuid.New()

	a, b := s.run(t, ByAccount{Account: u1}, s.bob.Party, nil)
	k1 := checkOutput(t, s, a, b)
	a, b = s.run(t, ByAccount{Account: u1}, s.bob.Party, nil)
	k1again := checkOutput(t, s, a, b)
	a, b = s.run(t, ByAccount{Account: u2}, s.bob.Party, nil)
	k2 := checkOutput(t, s, a, b)

	assert.Equal(t, k1, k1again)
	assert.NotEqual(t, k1, k2)
}

func TestKeyRequest_ForeignSigner(t *testing.T) {
	s := newSetup(t)
	impostor := party.Party{ID: s.bob.ID, OwningKey: test.RandomKey(t)}

	before, err := s.registry.Mappings(context.Background())
	require.NoError(t, err)

	a, b := s.run(t, Fresh{}, impostor, nil)
	require.NoError(t, b.Err)
	assert.ErrorIs(t, a.Err, protocol.ErrAuthentication)
	assert.ErrorIs(t, a.Err, claim.ErrSignerMismatch)

	after, err := s.registry.Mappings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, after, "nothing is registered")
}

func TestKeyRequest_TamperedSignature(t *testing.T) {
	s := newSetup(t)
	a, b := s.run(t, Fresh{}, s.bob.Party, func(msg *protocol.Message) {
		if msg.RoundNumber != 3 {
			return
		}
		var body message3
		require.NoError(t, cbor.Unmarshal(msg.Data, &body))
		body.Claim.Signature[len(body.Claim.Signature)-1] ^= 1
		data, err := cbor.Marshal(&body)
		require.NoError(t, err)
		msg.Data = data
	})
	require.NoError(t, b.Err)
	assert.ErrorIs(t, a.Err, protocol.ErrAuthentication)
	assert.ErrorIs(t, a.Err, claim.ErrInvalidSignature)
}

func TestKeyRequest_UnknownKey(t *testing.T) {
	s := newSetup(t)
	a, b := s.run(t, ByKnownKey{Key: test.RandomKey(t)}, s.bob.Party, nil)
	assert.ErrorIs(t, b.Err, protocol.ErrUnknownKey)
	assert.ErrorIs(t, a.Err, protocol.ErrUnknownKey)

	var abort *protocol.AbortError
	require.True(t, errors.As(a.Err, &abort))
	assert.Equal(t, s.bob.ID, abort.Peer)
	assert.Equal(t, protocol.CodeUnknownKey, abort.Code)
}

func TestKeyRequest_KeySubstitution(t *testing.T) {
	s := newSetup(t)
	known, err := s.bob.Keys.GenerateKey(context.Background(), nil)
	require.NoError(t, err)
	other, err := s.bob.Keys.GenerateKey(context.Background(), nil)
	require.NoError(t, err)

	a, _ := s.run(t, ByKnownKey{Key: known}, s.bob.Party, func(msg *protocol.Message) {
		if msg.RoundNumber != 3 {
			return
		}
		signed, err := claim.Sign(claim.Claim{Key: other}, keys.SignerFor(context.Background(), s.bob.Keys, s.bob.OwningKey))
		require.NoError(t, err)
		data, err := cbor.Marshal(&message3{Claim: signed})
		require.NoError(t, err)
		msg.Data = data
	})
	assert.ErrorIs(t, a.Err, protocol.ErrProtocolViolation)

	_, ok, err := s.registry.Resolve(context.Background(), other)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeyRequest_Unresolvable(t *testing.T) {
	s := newSetup(t)
	s.registry = identity.NewMemory()
	a, b := s.run(t, Fresh{}, s.bob.Party, nil)
	require.NoError(t, b.Err)
	assert.ErrorIs(t, a.Err, protocol.ErrResolution)
}

func TestKeyRequest_RegistrationConflict(t *testing.T) {
	ctx := context.Background()
	s := newSetup(t)
	known, err := s.bob.Keys.GenerateKey(ctx, nil)
	require.NoError(t, err)
	carol := test.RandomParty(t, "carol")
	ok, err := s.registry.Register(ctx, known, carol)
	require.NoError(t, err)
	require.True(t, ok)

	a, b := s.run(t, ByKnownKey{Key: known}, s.bob.Party, nil)
	require.NoError(t, b.Err)
	assert.ErrorIs(t, a.Err, protocol.ErrRegistrationConflict)

	owner, _, err := s.registry.Resolve(ctx, known)
	require.NoError(t, err)
	assert.Equal(t, carol, owner, "the existing mapping is kept")
}

func TestKeyRequest_ContradictoryRequest(t *testing.T) {
	s := newSetup(t)
	a, b := s.run(t, ByAccount{Account: uuid.New()}, s.bob.Party, func(msg *protocol.Message) {
		if msg.RoundNumber != 2 {
			return
		}
		var body message2
		require.NoError(t, cbor.Unmarshal(msg.Data, &body))
		key := test.RandomKey(t)
		body.Key = &key
		data, err := cbor.Marshal(&body)
		require.NoError(t, err)
		msg.Data = data
	})
	assert.ErrorIs(t, b.Err, protocol.ErrInvalidRequest)
	assert.ErrorIs(t, a.Err, protocol.ErrInvalidRequest)
}

func (s *setup) verify(t *testing.T, key keys.PublicKey) (test.Outcome, test.Outcome) {
	pair := test.NewPair(t, s.alice.Party, s.bob.Party, ProtocolID)
	return pair.Run(context.Background(),
		StartVerify(s.alice.Party, s.bob.Party, key, s.registry),
		StartRespond(s.bob.Party, s.alice.Party, s.bob.Keys),
	)
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	s := newSetup(t)
	known, err := s.bob.Keys.GenerateKey(ctx, nil)
	require.NoError(t, err)

	a, b := s.verify(t, known)
	require.NoError(t, a.Err)
	require.NoError(t, b.Err)
	signed, ok := a.Result.(*claim.Signed)
	require.True(t, ok)
	key, err := signed.Key()
	require.NoError(t, err)
	assert.Equal(t, known, key)

	_, ok, err = s.registry.Resolve(ctx, known)
	require.NoError(t, err)
	assert.False(t, ok, "verifying registers nothing")

	a, _ = s.verify(t, test.RandomKey(t))
	assert.ErrorIs(t, a.Err, protocol.ErrUnknownKey)
}

func TestVerify_SignerRegisteredElsewhere(t *testing.T) {
	ctx := context.Background()
	s := newSetup(t)
	s.registry = identity.NewMemory()
	mallory := party.Party{ID: "mallory", OwningKey: s.bob.OwningKey}
	require.NoError(t, identity.SeedNetworkMap(ctx, s.registry, s.alice.Party, mallory))
	known, err := s.bob.Keys.GenerateKey(ctx, nil)
	require.NoError(t, err)

	a, b := s.verify(t, known)
	require.NoError(t, b.Err)
	assert.ErrorIs(t, a.Err, protocol.ErrAuthentication)
}

func TestMessage2_Selector(t *testing.T) {
	account := uuid.New()
	key := test.RandomKey(t)
	tests := []struct {
		name    string
		msg     message2
		want    Selector
		wantErr bool
	}{
		{"fresh", message2{Kind: KindFresh}, Fresh{}, false},
		{"account", message2{Kind: KindAccount, Account: &account}, ByAccount{Account: account}, false},
		{"known key", message2{Kind: KindKnownKey, Key: &key}, ByKnownKey{Key: key}, false},
		{"both", message2{Kind: KindAccount, Account: &account, Key: &key}, nil, true},
		{"fresh with key", message2{Kind: KindFresh, Key: &key}, nil, true},
		{"account without payload", message2{Kind: KindAccount}, nil, true},
		{"kind mismatch", message2{Kind: KindKnownKey, Account: &account}, nil, true},
		{"nil account", message2{Kind: KindAccount, Account: &uuid.Nil}, nil, true},
		{"unknown kind", message2{Kind: 9}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.msg.selector()
			if tt.wantErr {
				assert.ErrorIs(t, err, protocol.ErrInvalidRequest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.msg, *toWire(got))
		})
	}
}

func TestStartRequest_InvalidSelector(t *testing.T) {
	s := newSetup(t)
	_, err := StartRequest(s.alice.Party, s.bob.Party, nil, s.registry)(nil)
	assert.ErrorIs(t, err, protocol.ErrInvalidRequest)
	_, err = StartVerify(s.alice.Party, s.bob.Party, keys.PublicKey{}, s.registry)(nil)
	assert.ErrorIs(t, err, protocol.ErrInvalidRequest)
	_, err = StartRespond(s.bob.Party, s.alice.Party, s.alice.Keys)(nil)
	assert.Error(t, err, "the key manager must hold the identity key of self")
}
