package protocol

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"

	"github.com/taurusgroup/confidential-identities/internal/round"
	"github.com/taurusgroup/confidential-identities/pkg/party"
)

// StartFunc is function that creates the first round of a protocol.
// sessionID is the identifier both parties share for the session the protocol runs over.
// If the creation fails (likely due to misconfiguration), and error is returned.
type StartFunc func(sessionID []byte) (round.Session, error)

var (
	errWrongDestination = errors.New("message: wrong destination")
	errWrongProtocol    = errors.New("message: wrong protocol ID")
	errWrongSSID        = errors.New("message: wrong SSID")
	errUnknownSender    = errors.New("message: unknown sender")
	errEmpty            = errors.New("message: empty content")
	errInvalidRound     = errors.New("message: invalid round number")
	errDuplicate        = errors.New("message: duplicate")
)

// TwoPartyHandler represents an execution of a two party protocol over a single session.
// It provides a simple interface for the user to receive/deliver protocol messages.
type TwoPartyHandler struct {
	round    round.Session
	leader   bool
	done     bool
	finished bool
	err      error
	result   interface{}
	messages map[round.Number]*Message
	out      chan *Message
	mtx      sync.Mutex

	Log zerolog.Logger
}

// NewTwoPartyHandler expects a StartFunc for the desired protocol. It returns a handler that the user can interact with.
// The leader sends the first message, and its first round is finalized right away.
//
// The handler logs to the logger carried by ctx, see zerolog.Ctx.
func NewTwoPartyHandler(ctx context.Context, create StartFunc, sessionID []byte, leader bool) (*TwoPartyHandler, error) {
	r, err := create(sessionID)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to create round: %w", err)
	}
	h := &TwoPartyHandler{
		round:    r,
		leader:   leader,
		messages: map[round.Number]*Message{},
		out:      make(chan *Message, int(r.FinalRoundNumber())+1),
	}
	h.Log = zerolog.Ctx(ctx).With().
		Str("protocol", r.ProtocolID()).
		Str("party", string(r.SelfID())).
		Str("peer", string(r.PeerID())).
		Int("round", int(r.Number())).
		Logger()
	h.Log.Info().Bool("leader", leader).Msg("start")

	if leader {
		h.mtx.Lock()
		h.advance(ctx)
		h.mtx.Unlock()
	}
	return h, nil
}

// Result returns the protocol result if the protocol completed successfully. Otherwise an error is returned.
//
// If the peer aborted, the error is an *AbortError.
func (h *TwoPartyHandler) Result() (interface{}, error) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	if h.finished {
		return h.result, nil
	}
	if h.err != nil {
		return nil, h.err
	}
	return nil, errors.New("protocol: not finished")
}

// Listen returns a channel with outgoing messages that must be sent to the peer.
// The channel is closed when the protocol either finishes or aborts.
func (h *TwoPartyHandler) Listen() <-chan *Message {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	return h.out
}

// Stop aborts the protocol if it is still running, and notifies the peer.
func (h *TwoPartyHandler) Stop() {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	if !h.done {
		h.abort(Error{RoundNumber: h.round.Number(), Err: errAborted})
	}
}

func (h *TwoPartyHandler) String() string {
	return fmt.Sprintf("party: %s, protocol: %s", h.round.SelfID(), h.round.ProtocolID())
}

// abort records err and queues an abort message carrying its code for the peer.
func (h *TwoPartyHandler) abort(err error) {
	if h.done {
		return
	}
	h.err = err
	h.Log.Error().Err(err).Msg("abort")

	data, marshalErr := cbor.Marshal(abortBody{Code: CodeOf(err), Reason: err.Error()})
	if marshalErr == nil {
		select {
		case h.out <- &Message{
			SSID:     h.round.SSID(),
			From:     h.round.SelfID(),
			To:       h.round.PeerID(),
			Protocol: h.round.ProtocolID(),
			Data:     data,
		}:
		default:
		}
	}
	h.stop()
}

func (h *TwoPartyHandler) stop() {
	if !h.done {
		h.done = true
		close(h.out)
	}
}

func (h *TwoPartyHandler) canAdvance() bool {
	if h.done {
		return false
	}
	if h.round.MessageContent() == nil {
		return true
	}
	return h.messages[h.round.Number()] != nil
}

func extractRoundMessage(r round.Session, msg *Message) (round.Message, error) {
	content := r.MessageContent()
	if err := cbor.Unmarshal(msg.Data, content); err != nil {
		return round.Message{}, fmt.Errorf("%w: failed to unmarshal message: %v", ErrProtocolViolation, err)
	}
	return round.Message{
		From:    msg.From,
		To:      msg.To,
		Content: content,
	}, nil
}

func (h *TwoPartyHandler) verifyMessage(msg *Message) error {
	if msg == nil {
		return nil
	}
	r := h.round
	roundMsg, err := extractRoundMessage(r, msg)
	if err != nil {
		return err
	}
	if err = r.VerifyMessage(roundMsg); err != nil {
		return err
	}
	return r.StoreMessage(roundMsg)
}

func (h *TwoPartyHandler) advance(ctx context.Context) {
	for h.canAdvance() {
		number := h.round.Number()
		msg := h.messages[number]
		delete(h.messages, number)
		if err := h.verifyMessage(msg); err != nil {
			h.abort(Error{RoundNumber: number, Culprit: h.round.PeerID(), Err: err})
			return
		}

		out := make(chan *round.Message, 2)
		newRound, err := h.round.Finalize(ctx, out)
		close(out)
		if err != nil {
			h.abort(Error{RoundNumber: number, Err: err})
			return
		}
		if newRound == nil {
			h.abort(Error{RoundNumber: number, Err: errors.New("failed without error before reaching the final round")})
			return
		}
		for roundMsg := range out {
			data, err := cbor.Marshal(roundMsg.Content)
			if err != nil {
				h.abort(Error{RoundNumber: number, Err: fmt.Errorf("failed to marshal round message: %w", err)})
				return
			}
			h.out <- &Message{
				SSID:        newRound.SSID(),
				From:        newRound.SelfID(),
				To:          roundMsg.To,
				Protocol:    newRound.ProtocolID(),
				RoundNumber: roundMsg.Content.RoundNumber(),
				Data:        data,
			}
		}

		h.round = newRound
		switch R := newRound.(type) {
		// An abort happened
		case *round.Abort:
			var culprit party.ID
			if len(R.Culprits) > 0 {
				culprit = R.Culprits[0]
			}
			h.abort(Error{RoundNumber: number, Culprit: culprit, Err: R.Err})
			return
		// We have the result
		case *round.Output:
			h.result = R.Result
			h.finished = true
			h.Log.Info().Msg("done")
			h.stop()
			return
		default:
		}
		h.Log.UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Int("round", int(newRound.Number()))
		})
		h.Log.Info().Msg("round advanced")
	}
}

// check returns an error if msg does not belong to this execution.
func (h *TwoPartyHandler) check(msg *Message) error {
	r := h.round
	switch {
	case msg == nil:
		return errEmpty
	case !msg.IsFor(r.SelfID()):
		return errWrongDestination
	case msg.Protocol != r.ProtocolID():
		return errWrongProtocol
	case !bytes.Equal(msg.SSID, r.SSID()):
		return errWrongSSID
	case msg.From != r.PeerID():
		return errUnknownSender
	case msg.Data == nil:
		return errEmpty
	case msg.RoundNumber > r.FinalRoundNumber():
		return errInvalidRound
	case msg.RoundNumber == 0:
		return nil
	case msg.RoundNumber < r.Number():
		return errDuplicate
	case h.messages[msg.RoundNumber] != nil:
		return errDuplicate
	}
	return nil
}

// Accept delivers msg to the protocol, and advances it as far as possible.
//
// A message which does not belong to this execution aborts the protocol with ErrProtocolViolation,
// since a session carries exactly one execution.
func (h *TwoPartyHandler) Accept(ctx context.Context, msg *Message) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	if h.done || msg == nil {
		return
	}

	if err := h.check(msg); err != nil {
		h.Log.Warn().Err(err).Stringer("msg", msg).Msg("rejected message")
		h.abort(Error{RoundNumber: h.round.Number(), Culprit: h.round.PeerID(), Err: fmt.Errorf("%w: %v", ErrProtocolViolation, err)})
		return
	}
	if e := h.Log.Debug(); e.Enabled() {
		e.Int("msg_round", int(msg.RoundNumber)).Hex("fingerprint", msg.Hash()[:8]).Msg("received")
	}

	if msg.RoundNumber == 0 {
		var body abortBody
		if err := cbor.Unmarshal(msg.Data, &body); err != nil {
			body = abortBody{Code: CodeProtocolViolation, Reason: "malformed abort message"}
		}
		h.err = &AbortError{Peer: msg.From, Code: body.Code, Reason: body.Reason}
		h.Log.Error().Err(h.err).Msg("aborted by peer")
		h.stop()
		return
	}

	h.messages[msg.RoundNumber] = msg
	h.advance(ctx)
}
