// Package node ties the protocols to a transport, a key manager and a registry.
// It runs the initiator side on demand, and the responder side for every session a peer opens.
package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/taurusgroup/confidential-identities/pkg/claim"
	"github.com/taurusgroup/confidential-identities/pkg/identity"
	"github.com/taurusgroup/confidential-identities/pkg/keys"
	"github.com/taurusgroup/confidential-identities/pkg/party"
	"github.com/taurusgroup/confidential-identities/pkg/protocol"
	"github.com/taurusgroup/confidential-identities/pkg/transport"
	"github.com/taurusgroup/confidential-identities/pkg/tx"
	"github.com/taurusgroup/confidential-identities/protocols/keyrequest"
	"github.com/taurusgroup/confidential-identities/protocols/keysync"
)

// Event describes an inbound session that finished.
type Event struct {
	Protocol string
	Peer     party.ID
	Result   interface{}
	Err      error
}

type Node struct {
	self      party.Party
	keys      keys.Manager
	registry  identity.Registry
	transport transport.Transport
	loader    tx.Loader
	events    chan<- Event
	log       zerolog.Logger
}

type Option func(*Node)

// WithLoader sets the loader used to resolve transaction inputs.
func WithLoader(l tx.Loader) Option {
	return func(n *Node) { n.loader = l }
}

// WithLogger sets the logger of the node. The default is zerolog.Nop().
func WithLogger(l zerolog.Logger) Option {
	return func(n *Node) { n.log = l }
}

// WithEvents has the node report every finished inbound session on ch.
func WithEvents(ch chan<- Event) Option {
	return func(n *Node) { n.events = ch }
}

// New returns a node authenticated by t, whose identity key is held by km.
func New(t transport.Transport, km keys.Manager, reg identity.Registry, opts ...Option) (*Node, error) {
	self := t.Self()
	if self.OwningKey != km.Identity() {
		return nil, fmt.Errorf("node: transport identity %s does not match key manager identity %s", self.OwningKey.Short(), km.Identity().Short())
	}
	n := &Node{
		self:      self,
		keys:      km,
		registry:  reg,
		transport: t,
		loader:    tx.NewMemoryStore(),
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.log = n.log.With().Str("node", string(self.ID)).Logger()
	return n, nil
}

// Self is the well-known identity of the node.
func (n *Node) Self() party.Party { return n.self }

// Registry is the registry the node maintains.
func (n *Node) Registry() identity.Registry { return n.registry }

// Keys is the key manager of the node.
func (n *Node) Keys() keys.Manager { return n.keys }

// RequestKey asks peer for a key matching selector, and maps it to peer once peer proved ownership.
func (n *Node) RequestKey(ctx context.Context, peer party.ID, selector keyrequest.Selector) (keys.PublicKey, error) {
	session, err := n.transport.Open(ctx, peer, keyrequest.ProtocolID)
	if err != nil {
		return keys.PublicKey{}, fmt.Errorf("node: request key: %w", err)
	}
	defer session.Close()

	result, err := n.run(ctx, keyrequest.StartRequest(n.self, session.Peer(), selector, n.registry), session, true)
	if err != nil {
		return keys.PublicKey{}, fmt.Errorf("node: request key from %s: %w", peer, err)
	}
	return result.(*claim.Signed).Key()
}

// SyncIdentities makes sure peer can resolve every key in candidates that this node can resolve.
// It returns the mappings that were sent.
func (n *Node) SyncIdentities(ctx context.Context, peer party.ID, candidates []keys.PublicKey) ([]identity.Mapping, error) {
	session, err := n.transport.Open(ctx, peer, keysync.ProtocolID)
	if err != nil {
		return nil, fmt.Errorf("node: sync: %w", err)
	}
	defer session.Close()

	result, err := n.run(ctx, keysync.StartSync(n.self, session.Peer(), candidates, n.registry), session, true)
	if err != nil {
		return nil, fmt.Errorf("node: sync with %s: %w", peer, err)
	}
	return result.([]identity.Mapping), nil
}

// SyncTransaction synchronizes the confidential identities of t with peer.
func (n *Node) SyncTransaction(ctx context.Context, peer party.ID, t *tx.Transaction) ([]identity.Mapping, error) {
	candidates, err := tx.ConfidentialIdentities(n.log.WithContext(ctx), t, n.loader, n.registry)
	if err != nil {
		return nil, fmt.Errorf("node: sync transaction %s: %w", t.ID, err)
	}
	return n.SyncIdentities(ctx, peer, candidates)
}

func (n *Node) run(ctx context.Context, create protocol.StartFunc, session transport.Session, leader bool) (interface{}, error) {
	ctx = n.log.WithContext(ctx)
	h, err := protocol.NewTwoPartyHandler(ctx, create, session.ID(), leader)
	if err != nil {
		return nil, err
	}
	return protocol.Run(ctx, h, session)
}

// prove is the keysync.Prover of the node.
// A mapping to another party is proven with a nested key request for the asserted key.
// A mapping to this node is checked against the key manager.
// Nothing is registered, the sync responder commits the mappings once all are proven.
func (n *Node) prove(ctx context.Context, m identity.Mapping) (identity.Mapping, error) {
	if m.Owner.ID != n.self.ID {
		if m.Owner.OwningKey == n.self.OwningKey {
			return identity.Mapping{}, fmt.Errorf("%w: %s asserted with our owning key", protocol.ErrAuthentication, m.Owner.ID)
		}
		if err := n.verifyKey(ctx, m); err != nil {
			return identity.Mapping{}, err
		}
		return m, nil
	}

	if m.Owner != n.self {
		return identity.Mapping{}, fmt.Errorf("%w: asserted owning key %s is not ours", protocol.ErrAuthentication, m.Owner.OwningKey.Short())
	}
	owned, err := n.keys.OwnsKey(ctx, m.Key)
	if err != nil {
		return identity.Mapping{}, err
	}
	if !owned {
		return identity.Mapping{}, fmt.Errorf("%w: %s", protocol.ErrUnknownKey, m.Key.Short())
	}
	return m, nil
}

// verifyKey has m.Owner prove it holds m.Key, with a known-key request that registers nothing.
func (n *Node) verifyKey(ctx context.Context, m identity.Mapping) error {
	session, err := n.transport.Open(ctx, m.Owner.ID, keyrequest.ProtocolID)
	if err != nil {
		return fmt.Errorf("node: verify key: %w", err)
	}
	defer session.Close()

	if _, err = n.run(ctx, keyrequest.StartVerify(n.self, m.Owner, m.Key, n.registry), session, true); err != nil {
		return fmt.Errorf("node: verify %s with %s: %w", m.Key.Short(), m.Owner.ID, err)
	}
	return nil
}

// Serve answers the sessions peers open, until ctx is done or the transport is closed.
// Sessions are served concurrently.
func (n *Node) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for {
		session, err := n.transport.Accept(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) || ctx.Err() != nil {
				break
			}
			_ = g.Wait()
			return fmt.Errorf("node: accept: %w", err)
		}
		g.Go(func() error {
			n.respond(ctx, session)
			return nil
		})
	}
	return g.Wait()
}

func (n *Node) respond(ctx context.Context, session transport.Session) {
	defer session.Close()
	log := n.log.With().Str("protocol", session.Protocol()).Str("peer", string(session.Peer().ID)).Logger()

	var create protocol.StartFunc
	switch session.Protocol() {
	case keyrequest.ProtocolID:
		create = keyrequest.StartRespond(n.self, session.Peer(), n.keys)
	case keysync.ProtocolID:
		create = keysync.StartRespondSync(n.self, session.Peer(), n.registry, n.prove)
	default:
		log.Warn().Msg("unsupported protocol")
		return
	}

	result, err := n.run(ctx, create, session, false)
	if err != nil {
		log.Warn().Err(err).Msg("session failed")
	} else {
		log.Info().Interface("result", result).Msg("session done")
	}

	if n.events != nil {
		select {
		case n.events <- Event{Protocol: session.Protocol(), Peer: session.Peer().ID, Result: result, Err: err}:
		case <-ctx.Done():
		}
	}
}
