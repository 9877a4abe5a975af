package dom

import "errors"

// Sentinel errors. Callers match with errors.Is; the wrapped message
// carries the offending category or identifier.
var (
	ErrUnknownCategory   = errors.New("unknown category")
	ErrIndexOutOfRange   = errors.New("index out of range")
	ErrUntrackedNode     = errors.New("untracked node")
	ErrAlreadyTracked    = errors.New("node already tracked")
	ErrMissingIdentifier = errors.New("missing identifier")
	ErrUnknownChangeKind = errors.New("unknown change kind")
	ErrMalformedMessage  = errors.New("malformed message")
)
