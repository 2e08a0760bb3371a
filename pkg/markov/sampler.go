package markov

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
)

// DefaultMaxDraws is the draw budget used when WithMaxDraws is not given.
const DefaultMaxDraws = 1_000_000

// RandSource is the random source consumed by the Sampler. *rand.Rand from
// math/rand/v2 satisfies it. A RandSource is not shared between concurrent
// Generate calls.
type RandSource interface {
	// IntN returns a uniform int in [0, n).
	IntN(n int) int
	// Float64 returns a uniform float64 in [0, 1).
	Float64() float64
}

// Strategy selects how the Sampler picks a successor from a probability row.
type Strategy int

const (
	// StrategyThreshold draws a candidate uniformly among the nonzero
	// successors and accepts it when its probability exceeds a uniform draw
	// in [0, 1). Rejected draws are repeated, so the number of random
	// numbers consumed per step varies and skewed rows can burn through the
	// draw budget.
	StrategyThreshold Strategy = iota
	// StrategyCumulative draws once from the row's cumulative distribution.
	// It consumes exactly one random number per step, so a seeded run
	// produces different output than StrategyThreshold.
	StrategyCumulative
)

func (s Strategy) String() string {
	switch s {
	case StrategyThreshold:
		return "threshold"
	case StrategyCumulative:
		return "cumulative"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy maps "threshold" or "cumulative" to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(name) {
	case "", "threshold":
		return StrategyThreshold, nil
	case "cumulative":
		return StrategyCumulative, nil
	default:
		return 0, fmt.Errorf("unknown sampling strategy %q", name)
	}
}

// sampleOptions is used by the Sampler to configure default options.
type sampleOptions struct {
	maxDraws  int
	maxLength int
	strategy  Strategy
}

// SampleOption configures a Sampler.
type SampleOption func(*sampleOptions)

// WithMaxDraws bounds the total number of candidate draws a single
// generation may spend. Exceeding it yields an ExhaustedPathError with
// ReasonDrawLimit instead of looping forever on near-deterministic rows.
// Values <= 0 keep the default.
func WithMaxDraws(n int) SampleOption {
	return func(o *sampleOptions) {
		if n > 0 {
			o.maxDraws = n
		}
	}
}

// WithMaxLength bounds the number of emitted tokens. Zero means unbounded.
func WithMaxLength(n int) SampleOption {
	return func(o *sampleOptions) { o.maxLength = n }
}

// WithStrategy selects the successor selection rule. The default is
// StrategyThreshold.
func WithStrategy(s Strategy) SampleOption {
	return func(o *sampleOptions) { o.strategy = s }
}

// Sampler generates token sequences from a probability matrix by walking from
// START until END is accepted. A Sampler holds no per-run state and can be
// used from several goroutines as long as each call has its own RandSource.
type Sampler struct {
	opts   sampleOptions
	logger *slog.Logger
}

// NewSampler returns a Sampler configured with opts.
func NewSampler(opts ...SampleOption) *Sampler {
	o := sampleOptions{
		maxDraws: DefaultMaxDraws,
		strategy: StrategyThreshold,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Sampler{
		opts:   o,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetLogger sets the logger for the Sampler. By default, all logs are discarded.
func (s *Sampler) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Generate samples one sequence of tokens between START and END, exclusive
// of both. It returns an *ExhaustedPathError when it reaches a row without
// successors or runs out of draws; it never restarts from START on its own.
func (s *Sampler) Generate(ctx context.Context, probs *Matrix, vocab *Vocabulary, rng RandSource) ([]string, error) {
	if probs.Size() != vocab.Len() {
		return nil, fmt.Errorf("%w: matrix is %dx%d, vocabulary has %d tokens", ErrSizeMismatch, probs.Size(), probs.Size(), vocab.Len())
	}

	state := vocab.StartID()
	end := vocab.EndID()
	out := make([]string, 0, 16)
	draws := 0

	exhausted := func(reason ExhaustReason) error {
		text, _ := vocab.Token(state)
		s.logger.DebugContext(ctx, "Generation exhausted",
			slog.String("reason", reason.String()),
			slog.Int("state", state),
			slog.String("token", text),
			slog.Int("draws", draws),
			slog.Int("generated_length", len(out)),
		)
		return &ExhaustedPathError{Reason: reason, State: state, Token: text, Draws: draws, Partial: out}
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candidates := successors(probs.Row(state))
		if len(candidates) == 0 {
			return nil, exhausted(ReasonDeadEnd)
		}

		var next int
		var ok bool
		var err error
		switch s.opts.strategy {
		case StrategyCumulative:
			next, ok = s.pickCumulative(candidates, rng, &draws)
		default:
			next, ok, err = s.pickThreshold(ctx, candidates, rng, &draws)
		}
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, exhausted(ReasonDrawLimit)
		}

		if next == end {
			s.logger.DebugContext(ctx, "Generation terminated by END token",
				slog.Int("draws", draws),
				slog.Int("generated_length", len(out)),
			)
			return out, nil
		}
		if s.opts.maxLength > 0 && len(out) >= s.opts.maxLength {
			return nil, exhausted(ReasonLengthLimit)
		}

		text, err := vocab.Token(next)
		if err != nil {
			return nil, err
		}
		out = append(out, text)
		state = next
	}
}

// successors returns the entries of row that may be chosen: those with a
// finite probability above zero. row is only copied when it holds others.
func successors(row []Entry) []Entry {
	for i, e := range row {
		if selectable(e.Value) {
			continue
		}
		out := append([]Entry(nil), row[:i]...)
		for _, e := range row[i+1:] {
			if selectable(e.Value) {
				out = append(out, e)
			}
		}
		return out
	}
	return row
}

func selectable(p float64) bool {
	return p > 0 && !math.IsInf(p, 1)
}

// pickThreshold repeats uniform candidate draws until one is accepted by
// p[j] > r. It reports false once the draw budget is spent.
func (s *Sampler) pickThreshold(ctx context.Context, candidates []Entry, rng RandSource, draws *int) (int, bool, error) {
	for *draws < s.opts.maxDraws {
		*draws++
		if *draws%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, false, err
			}
		}
		c := candidates[rng.IntN(len(candidates))]
		if c.Value > rng.Float64() {
			return c.Col, true, nil
		}
	}
	return 0, false, nil
}

// pickCumulative draws once from the cumulative distribution of candidates.
func (s *Sampler) pickCumulative(candidates []Entry, rng RandSource, draws *int) (int, bool) {
	if *draws >= s.opts.maxDraws {
		return 0, false
	}
	*draws++
	var total float64
	for _, c := range candidates {
		total += c.Value
	}
	r := rng.Float64() * total
	for _, c := range candidates {
		r -= c.Value
		if r < 0 {
			return c.Col, true
		}
	}
	// Rounding can leave r at a tiny positive value.
	return candidates[len(candidates)-1].Col, true
}
