package markov

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Model bundles a Vocabulary with its transition counts and the normalized
// probability matrix derived from them. A Model is read-only after it is
// built and safe for concurrent generation, one RandSource per caller.
type Model struct {
	vocab  *Vocabulary
	counts *Matrix // nil when loaded from a probability file
	probs  *Matrix
	stats  CountStats
	logger *slog.Logger
}

// trainOptions is used by Train to configure default options.
type trainOptions struct {
	workers int
}

// TrainOption configures Train.
type TrainOption func(*trainOptions)

// WithWorkers counts transitions on n goroutines. Values <= 1 count on the
// calling goroutine.
func WithWorkers(n int) TrainOption {
	return func(o *trainOptions) { o.workers = n }
}

// Train builds a Model from tokenized definitions: it indexes the
// vocabulary, counts transitions and normalizes the counts.
func Train(ctx context.Context, defs []Definition, opts ...TrainOption) (*Model, error) {
	return TrainWithLogger(ctx, defs, nil, opts...)
}

// TrainWithLogger is Train with progress reported to logger.
func TrainWithLogger(ctx context.Context, defs []Definition, logger *slog.Logger, opts ...TrainOption) (*Model, error) {
	o := trainOptions{workers: 1}
	for _, opt := range opts {
		opt(&o)
	}
	m := &Model{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	m.SetLogger(logger)

	m.vocab = BuildVocabulary(defs)
	m.logger.InfoContext(ctx, "Vocabulary built",
		slog.Int("definitions", len(defs)),
		slog.Int("vocab_size", m.vocab.Len()),
	)

	counts, stats, err := countConcurrent(ctx, m.vocab, defs, o.workers)
	if err != nil {
		return nil, fmt.Errorf("counting transitions: %w", err)
	}
	if stats.Skipped > 0 {
		m.logger.DebugContext(ctx, "Skipped empty definitions", slog.Int("skipped", stats.Skipped))
	}
	m.counts = counts
	m.stats = stats
	m.probs = Normalize(counts)

	m.logger.InfoContext(ctx, "Training completed",
		slog.Int("vocab_size", m.vocab.Len()),
		slog.Int("transitions", stats.Transitions),
		slog.Int("distinct_transitions", counts.NonZero()),
		slog.Int("skipped_definitions", stats.Skipped),
		slog.Int("workers", max(o.workers, 1)),
	)
	return m, nil
}

// NewModel assembles a Model from a vocabulary and a count matrix, typically
// ones loaded from a Store. The counts are normalized afresh.
func NewModel(vocab *Vocabulary, counts *Matrix) (*Model, error) {
	if counts.Size() != vocab.Len() {
		return nil, fmt.Errorf("%w: counts are %dx%d, vocabulary has %d tokens", ErrSizeMismatch, counts.Size(), counts.Size(), vocab.Len())
	}
	return &Model{
		vocab:  vocab,
		counts: counts,
		probs:  Normalize(counts),
		stats:  CountStats{Transitions: int(counts.Total())},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// NewModelFromProbabilities assembles a Model from an already normalized
// matrix, as read back from a matrix file. Such a model has no counts.
func NewModelFromProbabilities(vocab *Vocabulary, probs *Matrix) (*Model, error) {
	if probs.Size() != vocab.Len() {
		return nil, fmt.Errorf("%w: matrix is %dx%d, vocabulary has %d tokens", ErrSizeMismatch, probs.Size(), probs.Size(), vocab.Len())
	}
	return &Model{
		vocab:  vocab,
		probs:  probs,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// SetLogger sets the logger for the Model. By default, all logs are discarded.
func (m *Model) SetLogger(logger *slog.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Vocabulary returns the model's vocabulary.
func (m *Model) Vocabulary() *Vocabulary { return m.vocab }

// Counts returns the raw count matrix, or nil if the model was loaded from
// probabilities only. Callers must not modify it.
func (m *Model) Counts() *Matrix { return m.counts }

// Probabilities returns the normalized matrix. Callers must not modify it.
func (m *Model) Probabilities() *Matrix { return m.probs }

// Generate samples one definition from the model.
func (m *Model) Generate(ctx context.Context, rng RandSource, opts ...SampleOption) ([]string, error) {
	s := NewSampler(opts...)
	s.SetLogger(m.logger)
	return s.Generate(ctx, m.probs, m.vocab, rng)
}

// GenerateN samples n definitions. A run that fails with ErrExhaustedPath is
// retried from START up to retries times before GenerateN gives up and
// returns the definitions generated so far along with the error. An n of
// zero or less returns an empty result.
func (m *Model) GenerateN(ctx context.Context, rng RandSource, n, retries int, opts ...SampleOption) ([][]string, error) {
	s := NewSampler(opts...)
	s.SetLogger(m.logger)

	out := make([][]string, 0, max(n, 0))
	for len(out) < n {
		var def []string
		var err error
		for attempt := 0; ; attempt++ {
			def, err = s.Generate(ctx, m.probs, m.vocab, rng)
			if err == nil || !errors.Is(err, ErrExhaustedPath) || attempt >= retries {
				break
			}
			m.logger.DebugContext(ctx, "Retrying exhausted generation",
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
		}
		if err != nil {
			return out, err
		}
		out = append(out, def)
	}
	return out, nil
}
