package markov

import (
	"encoding/json"
	"fmt"
)

const (
	// StartTokenText is the reserved text for the Start-Of-Definition sentinel.
	StartTokenText = "<START>"
	// EndTokenText is the reserved text for the End-Of-Definition sentinel.
	EndTokenText = "<END>"
)

// Definition is the ordered token sequence of one dictionary entry.
type Definition []string

// Vocabulary is a bijective mapping between tokens and dense integer IDs in
// [0, Len()). Corpus tokens are numbered in first-seen order and the two
// sentinels always take the last two IDs. A Vocabulary is read-only once
// built and may be shared freely between goroutines.
type Vocabulary struct {
	ids    map[string]int
	tokens []string // id -> token
}

// BuildVocabulary scans every token of every definition in order and assigns
// each new token the next unused ID. The START and END sentinels are appended
// afterwards, so an empty corpus yields a vocabulary of size 2.
//
// Source tokens equal to StartTokenText or EndTokenText are skipped, and the
// transition counter drops them as well.
func BuildVocabulary(defs []Definition) *Vocabulary {
	v := &Vocabulary{ids: make(map[string]int)}
	for _, def := range defs {
		for _, token := range def {
			if isSentinel(token) {
				continue
			}
			if _, ok := v.ids[token]; !ok {
				v.add(token)
			}
		}
	}
	v.add(StartTokenText)
	v.add(EndTokenText)
	return v
}

// NewVocabulary rebuilds a Vocabulary from an ordered token list, as produced
// by Tokens. The list must end with the START and END sentinels and contain
// no duplicates.
func NewVocabulary(tokens []string) (*Vocabulary, error) {
	n := len(tokens)
	if n < 2 || tokens[n-2] != StartTokenText || tokens[n-1] != EndTokenText {
		return nil, fmt.Errorf("vocabulary must end with %s and %s", StartTokenText, EndTokenText)
	}
	v := &Vocabulary{ids: make(map[string]int, n), tokens: make([]string, 0, n)}
	for i, token := range tokens {
		if _, dup := v.ids[token]; dup {
			return nil, fmt.Errorf("duplicate token %q at id %d", token, i)
		}
		v.add(token)
	}
	return v, nil
}

// isSentinel reports whether token is the reserved text of START or END.
func isSentinel(token string) bool {
	return token == StartTokenText || token == EndTokenText
}

func (v *Vocabulary) add(token string) {
	v.ids[token] = len(v.tokens)
	v.tokens = append(v.tokens, token)
}

// Len returns N, the number of IDs including both sentinels.
func (v *Vocabulary) Len() int { return len(v.tokens) }

// StartID returns the ID of the START sentinel (always Len()-2).
func (v *Vocabulary) StartID() int { return len(v.tokens) - 2 }

// EndID returns the ID of the END sentinel (always Len()-1).
func (v *Vocabulary) EndID() int { return len(v.tokens) - 1 }

// ID looks up a token and returns its ID. Tokens that were never indexed
// return an error wrapping ErrUnknownToken.
func (v *Vocabulary) ID(token string) (int, error) {
	id, ok := v.ids[token]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownToken, token)
	}
	return id, nil
}

// MustID is like ID but panics on an unknown token. It is meant for callers
// that hold tokens taken from the same corpus the vocabulary was built from.
func (v *Vocabulary) MustID(token string) int {
	id, err := v.ID(token)
	if err != nil {
		panic(err)
	}
	return id
}

// Token returns the token text for an ID.
func (v *Vocabulary) Token(id int) (string, error) {
	if id < 0 || id >= len(v.tokens) {
		return "", fmt.Errorf("%w: id %d out of range [0, %d)", ErrUnknownToken, id, len(v.tokens))
	}
	return v.tokens[id], nil
}

// Tokens returns a copy of all tokens ordered by ID.
func (v *Vocabulary) Tokens() []string {
	out := make([]string, len(v.tokens))
	copy(out, v.tokens)
	return out
}

// MarshalJSON encodes the vocabulary as its ordered token list.
func (v *Vocabulary) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.tokens)
}

// UnmarshalJSON decodes an ordered token list produced by MarshalJSON.
func (v *Vocabulary) UnmarshalJSON(data []byte) error {
	var tokens []string
	if err := json.Unmarshal(data, &tokens); err != nil {
		return err
	}
	nv, err := NewVocabulary(tokens)
	if err != nil {
		return err
	}
	*v = *nv
	return nil
}
