// Package transport defines the session abstraction protocols run over,
// and an in-process implementation of it.
package transport

import (
	"context"
	"errors"

	"github.com/taurusgroup/confidential-identities/pkg/party"
	"github.com/taurusgroup/confidential-identities/pkg/protocol"
)

var (
	ErrClosed      = errors.New("transport: closed")
	ErrUnknownPeer = errors.New("transport: unknown peer")
)

// Session is an ordered, reliable channel to exactly one authenticated counterparty.
// A session carries a single protocol execution.
type Session interface {
	protocol.Conn
	// ID is a nonce shared by both ends of the session.
	ID() []byte
	// Peer is the authenticated counterparty.
	Peer() party.Party
	// Protocol is the ID of the protocol the session was opened for.
	Protocol() string
	// Close releases the session. The peer can still receive what was sent before.
	Close() error
}

// Transport opens sessions to other parties and accepts the ones they open.
type Transport interface {
	// Self is the party this transport authenticates as.
	Self() party.Party
	// Open starts a new session with peer for protocolID.
	Open(ctx context.Context, peer party.ID, protocolID string) (Session, error)
	// Accept blocks until a peer opens a session.
	Accept(ctx context.Context) (Session, error)
	// Close stops accepting sessions.
	Close() error
}
