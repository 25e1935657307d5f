package protocol

import (
	"context"
	"fmt"
)

// Conn is the part of a session a handler is driven over.
type Conn interface {
	// Send delivers msg to the peer.
	Send(ctx context.Context, msg *Message) error
	// Receive blocks until the peer sends a message, the session is closed, or ctx is done.
	Receive(ctx context.Context) (*Message, error)
}

// Run drives h over conn until the protocol finishes, and returns h.Result().
//
// Run suspends on conn.Receive while the peer has not answered.
// If receiving fails, for instance because ctx is cancelled, the handler is stopped
// and the peer is notified on a best effort basis.
func Run(ctx context.Context, h *TwoPartyHandler, conn Conn) (interface{}, error) {
	out := h.Listen()
	for {
		closed, sendErr := flush(ctx, out, conn)
		if closed {
			result, err := h.Result()
			if err != nil {
				// the peer may be gone already, the local outcome is what matters
				return nil, err
			}
			if sendErr != nil {
				return nil, fmt.Errorf("protocol: send: %w", sendErr)
			}
			return result, nil
		}
		if sendErr != nil {
			h.Stop()
			return nil, fmt.Errorf("protocol: send: %w", sendErr)
		}

		msg, err := conn.Receive(ctx)
		if err != nil {
			h.Stop()
			_, _ = flush(context.WithoutCancel(ctx), out, conn)
			return nil, fmt.Errorf("protocol: receive: %w", err)
		}
		h.Accept(ctx, msg)
	}
}

// flush sends every queued message, and reports whether out was closed.
// Once a send fails, the remaining messages are drained without being sent.
func flush(ctx context.Context, out <-chan *Message, conn Conn) (closed bool, err error) {
	for {
		select {
		case msg, ok := <-out:
			if !ok {
				return true, err
			}
			if err != nil {
				continue
			}
			err = conn.Send(ctx, msg)
		default:
			return false, err
		}
	}
}
