package protocol

import (
	"errors"
	"fmt"

	"github.com/taurusgroup/confidential-identities/internal/round"
	"github.com/taurusgroup/confidential-identities/pkg/party"
)

var (
	// ErrInvalidRequest is returned when a request is malformed or self-contradictory.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrAuthentication is returned when a claim is signed by the wrong key or its signature does not verify.
	ErrAuthentication = errors.New("authentication failed")
	// ErrResolution is returned when a key cannot be resolved to a well-known party.
	ErrResolution = errors.New("unresolvable identity")
	// ErrRegistrationConflict is returned when a key is already mapped to a different party.
	ErrRegistrationConflict = errors.New("registration conflict")
	// ErrProtocolViolation is returned when the peer sends something the protocol does not allow.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrUnknownKey is returned when a node is asked to prove ownership of a key it does not hold.
	ErrUnknownKey = errors.New("unknown key")
)

// Code identifies an error kind on the wire.
type Code uint8

const (
	CodeInternal Code = iota
	CodeInvalidRequest
	CodeAuthentication
	CodeResolution
	CodeRegistrationConflict
	CodeProtocolViolation
	CodeUnknownKey
	CodeCancelled
)

var codes = []struct {
	code Code
	err  error
}{
	{CodeInvalidRequest, ErrInvalidRequest},
	{CodeAuthentication, ErrAuthentication},
	{CodeResolution, ErrResolution},
	{CodeRegistrationConflict, ErrRegistrationConflict},
	{CodeProtocolViolation, ErrProtocolViolation},
	{CodeUnknownKey, ErrUnknownKey},
}

// CodeOf returns the wire code of the first sentinel err wraps.
func CodeOf(err error) Code {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	if errors.Is(err, errAborted) {
		return CodeCancelled
	}
	return CodeInternal
}

// Sentinel returns the sentinel error for c, or nil if c has none.
func (c Code) Sentinel() error {
	for _, cc := range codes {
		if cc.code == c {
			return cc.err
		}
	}
	return nil
}

func (c Code) String() string {
	if err := c.Sentinel(); err != nil {
		return err.Error()
	}
	if c == CodeCancelled {
		return "cancelled"
	}
	return "internal error"
}

// Error is a custom error for protocols which contains information about the responsible round in which it occurred,
// and the party responsible.
type Error struct {
	// RoundNumber where the error occurred
	RoundNumber round.Number
	// Culprit is empty if the identity of the misbehaving party cannot be known
	Culprit party.ID
	// Err is the underlying error
	Err error
}

func (e Error) Error() string {
	if e.Culprit == "" {
		return fmt.Sprintf("round %d: %s", e.RoundNumber, e.Err)
	}
	return fmt.Sprintf("round %d: party: %s: %s", e.RoundNumber, e.Culprit, e.Err)
}

func (e Error) Unwrap() error {
	return e.Err
}

// AbortError is returned by a Handler when the peer aborted the protocol.
type AbortError struct {
	Peer   party.ID
	Code   Code
	Reason string
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("aborted by %s: %s: %s", e.Peer, e.Code, e.Reason)
}

// Unwrap returns the sentinel matching the abort code,
// so that errors.Is works the same on both sides of a session.
func (e *AbortError) Unwrap() error {
	return e.Code.Sentinel()
}

// abortBody is the content of a message with round number 0.
type abortBody struct {
	Code   Code
	Reason string
}

var errAborted = errors.New("aborted by user")
