package test

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/taurusgroup/confidential-identities/pkg/protocol"
	"github.com/taurusgroup/confidential-identities/pkg/transport"
)

// Outcome is what a handler returned.
type Outcome struct {
	Result interface{}
	Err    error
}

// HandlerLoop runs create over session until the protocol finishes, and closes the session.
func HandlerLoop(ctx context.Context, create protocol.StartFunc, session transport.Session, leader bool) Outcome {
	defer session.Close()
	h, err := protocol.NewTwoPartyHandler(ctx, create, session.ID(), leader)
	if err != nil {
		return Outcome{Err: err}
	}
	result, err := protocol.Run(ctx, h, session)
	return Outcome{Result: result, Err: err}
}

// Run runs the leader on p.A and the other side on p.B, one goroutine each, and blocks until both have finished.
func (p *Pair) Run(ctx context.Context, leader, follower protocol.StartFunc) (Outcome, Outcome) {
	var a, b Outcome
	var g errgroup.Group
	g.Go(func() error {
		a = HandlerLoop(ctx, leader, p.A, true)
		return nil
	})
	g.Go(func() error {
		b = HandlerLoop(ctx, follower, p.B, false)
		return nil
	})
	_ = g.Wait()
	return a, b
}
