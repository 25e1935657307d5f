package round

import "errors"

var (
	ErrInvalidContent = errors.New("round: invalid content")
	ErrOutChanFull    = errors.New("round: out channel is full")
)
