package round

import "context"

type Round interface {
	// VerifyMessage handles an incoming Message from the peer and validates its content with regard to the protocol.
	// The content argument can be cast to the appropriate type for this round without error check.
	// This function should not modify any saved state.
	VerifyMessage(msg Message) error

	// StoreMessage should be called after VerifyMessage and should only store the appropriate fields from the
	// content.
	StoreMessage(msg Message) error

	// Finalize is called after the message for the current round has been processed.
	// Messages for the next round are sent out through the out channel.
	// Calls to external services (registry, key manager, nested protocols) are bound to ctx.
	//
	// A protocol failure attributable to the peer is reported by returning an Abort round with a nil error,
	// see Helper.AbortRound. A non-nil error is a local failure.
	//
	// In the last round, Finalize should return
	//   r.ResultRound(result), nil
	// where result is the output of the protocol.
	Finalize(ctx context.Context, out chan<- *Message) (Session, error)

	// MessageContent returns an uninitialized Content for this round.
	//
	// A round that does not expect a message returns nil.
	MessageContent() Content

	// Number returns the number of this round.
	Number() Number
}
