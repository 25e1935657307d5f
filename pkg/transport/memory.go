package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/taurusgroup/confidential-identities/pkg/party"
	"github.com/taurusgroup/confidential-identities/pkg/protocol"
)

// Network is an in-process network. Every party joins it with a well-known identity,
// and messages are stamped with the sender's ID on delivery, so peers are authenticated by construction.
type Network struct {
	endpoints map[party.ID]*Endpoint
	intercept func(msg *protocol.Message)
	mtx       sync.Mutex
}

func NewNetwork() *Network {
	return &Network{endpoints: make(map[party.ID]*Endpoint)}
}

// Intercept installs f, which is called on every message before it is delivered and may modify it.
func (n *Network) Intercept(f func(msg *protocol.Message)) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.intercept = f
}

// Join adds p to the network.
func (n *Network) Join(p party.Party) (*Endpoint, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	n.mtx.Lock()
	defer n.mtx.Unlock()
	if _, ok := n.endpoints[p.ID]; ok {
		return nil, fmt.Errorf("transport: party %s already joined", p.ID)
	}
	e := &Endpoint{
		network:  n,
		self:     p,
		incoming: make(chan *memSession, 16),
		done:     make(chan struct{}),
	}
	n.endpoints[p.ID] = e
	return e, nil
}

// Parties returns the parties that joined the network.
func (n *Network) Parties() []party.Party {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	parties := make([]party.Party, 0, len(n.endpoints))
	for _, e := range n.endpoints {
		parties = append(parties, e.self)
	}
	return parties
}

func (n *Network) endpoint(id party.ID) (*Endpoint, bool) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	e, ok := n.endpoints[id]
	return e, ok
}

func (n *Network) tamper(msg *protocol.Message) {
	n.mtx.Lock()
	f := n.intercept
	n.mtx.Unlock()
	if f != nil {
		f(msg)
	}
}

// Endpoint is a party's Transport on a Network.
type Endpoint struct {
	network  *Network
	self     party.Party
	incoming chan *memSession
	done     chan struct{}
	once     sync.Once
}

var _ Transport = (*Endpoint)(nil)

// Self implements Transport.
func (e *Endpoint) Self() party.Party { return e.self }

// Open implements Transport.
func (e *Endpoint) Open(ctx context.Context, peer party.ID, protocolID string) (Session, error) {
	remote, ok := e.network.endpoint(peer)
	if !ok || peer == e.self.ID {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, peer)
	}

	id := uuid.New()
	toRemote, toLocal := newMailbox(), newMailbox()
	local := &memSession{
		id: id[:], network: e.network, self: e.self, peer: remote.self, protocol: protocolID,
		in: toLocal, out: toRemote,
	}
	other := &memSession{
		id: id[:], network: e.network, self: remote.self, peer: e.self, protocol: protocolID,
		in: toRemote, out: toLocal,
	}

	select {
	case remote.incoming <- other:
		return local, nil
	case <-remote.done:
		return nil, fmt.Errorf("%w: %s", ErrClosed, peer)
	case <-e.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Accept implements Transport.
func (e *Endpoint) Accept(ctx context.Context) (Session, error) {
	select {
	case s := <-e.incoming:
		return s, nil
	case <-e.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements Transport.
func (e *Endpoint) Close() error {
	e.once.Do(func() { close(e.done) })
	return nil
}

type memSession struct {
	id       []byte
	network  *Network
	self     party.Party
	peer     party.Party
	protocol string
	in, out  *mailbox
}

func (s *memSession) ID() []byte        { return s.id }
func (s *memSession) Peer() party.Party { return s.peer }
func (s *memSession) Protocol() string  { return s.protocol }

func (s *memSession) Send(ctx context.Context, msg *protocol.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := *msg
	cp.From = s.self.ID
	cp.Data = append([]byte(nil), msg.Data...)
	s.network.tamper(&cp)
	return s.out.put(&cp)
}

func (s *memSession) Receive(ctx context.Context) (*protocol.Message, error) {
	return s.in.take(ctx)
}

func (s *memSession) Close() error {
	s.out.close()
	s.in.close()
	return nil
}

// mailbox is an unbounded FIFO queue, so that Send never blocks.
type mailbox struct {
	queue  []*protocol.Message
	notify chan struct{}
	closed chan struct{}
	once   sync.Once
	mtx    sync.Mutex
}

func newMailbox() *mailbox {
	return &mailbox{
		notify: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (m *mailbox) put(msg *protocol.Message) error {
	select {
	case <-m.closed:
		return ErrClosed
	default:
	}
	m.mtx.Lock()
	m.queue = append(m.queue, msg)
	m.mtx.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

// take returns queued messages before reporting that the mailbox is closed.
func (m *mailbox) take(ctx context.Context) (*protocol.Message, error) {
	for {
		m.mtx.Lock()
		if len(m.queue) > 0 {
			msg := m.queue[0]
			m.queue = m.queue[1:]
			m.mtx.Unlock()
			return msg, nil
		}
		m.mtx.Unlock()

		select {
		case <-m.closed:
			return nil, ErrClosed
		default:
		}

		select {
		case <-m.notify:
		case <-m.closed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (m *mailbox) close() {
	m.once.Do(func() { close(m.closed) })
}
