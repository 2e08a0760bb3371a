package markov

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownToken is returned when a token or ID is looked up in a
	// Vocabulary that never indexed it. It points at a caller bug, such as
	// mixing tokens from different corpora.
	ErrUnknownToken = errors.New("unknown token")

	// ErrExhaustedPath is matched by every *ExhaustedPathError.
	ErrExhaustedPath = errors.New("exhausted path")

	// ErrSizeMismatch is returned when matrices or vocabularies of different
	// sizes are combined.
	ErrSizeMismatch = errors.New("size mismatch")

	// ErrModelNotFound is returned by Store lookups for a missing model name.
	ErrModelNotFound = errors.New("model not found")
)

// ExhaustReason tells why a generation run stopped without reaching END.
type ExhaustReason int

const (
	// ReasonDeadEnd means the current state has no successor with a
	// probability above zero.
	ReasonDeadEnd ExhaustReason = iota
	// ReasonDrawLimit means the sampler used up its draw budget.
	ReasonDrawLimit
	// ReasonLengthLimit means the sequence hit the configured maximum length.
	ReasonLengthLimit
)

func (r ExhaustReason) String() string {
	switch r {
	case ReasonDeadEnd:
		return "dead end"
	case ReasonDrawLimit:
		return "draw limit"
	case ReasonLengthLimit:
		return "length limit"
	default:
		return "unknown"
	}
}

// ExhaustedPathError is the structured failure returned by the Sampler. It is
// distinct from a successful empty generation. Partial holds the tokens
// emitted before the failure.
type ExhaustedPathError struct {
	Reason  ExhaustReason
	State   int
	Token   string
	Draws   int
	Partial []string
}

func (e *ExhaustedPathError) Error() string {
	return fmt.Sprintf("exhausted path at state %d (%q) after %d draws: %s", e.State, e.Token, e.Draws, e.Reason)
}

// Is lets errors.Is(err, ErrExhaustedPath) match.
func (e *ExhaustedPathError) Is(target error) bool {
	return target == ErrExhaustedPath
}
