package markov

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// CountStats summarises one pass of the transition counter.
type CountStats struct {
	Definitions int // definitions seen, including skipped ones
	Skipped     int // zero-length definitions
	Transitions int // transitions emitted, sentinel transitions included
}

func (s *CountStats) add(o CountStats) {
	s.Definitions += o.Definitions
	s.Skipped += o.Skipped
	s.Transitions += o.Transitions
}

// Count walks every definition and accumulates directed transition counts
// between consecutive token IDs into a fresh Vocabulary-sized matrix. Each
// definition d contributes START -> d[0], d[i] -> d[i+1] and d[k-1] -> END.
// Sentinel text is dropped and definitions left without tokens are skipped.
// A token missing from the vocabulary returns an error wrapping
// ErrUnknownToken.
func Count(v *Vocabulary, defs []Definition) (*Matrix, error) {
	m, _, err := countDefinitions(v, defs)
	return m, err
}

// CountConcurrent is Count split over workers goroutines. Each worker counts
// a contiguous slice of defs into its own matrix and the partial matrices
// are merged only after every worker has returned, so the result equals
// Count(v, defs).
func CountConcurrent(ctx context.Context, v *Vocabulary, defs []Definition, workers int) (*Matrix, error) {
	m, _, err := countConcurrent(ctx, v, defs, workers)
	return m, err
}

func countConcurrent(ctx context.Context, v *Vocabulary, defs []Definition, workers int) (*Matrix, CountStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, CountStats{}, err
	}
	if workers <= 1 || len(defs) < 2*workers {
		return countDefinitions(v, defs)
	}

	chunk := (len(defs) + workers - 1) / workers
	partials := make([]*Matrix, workers)
	stats := make([]CountStats, workers)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, len(defs))
		if lo >= hi {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m, st, err := countDefinitions(v, defs[lo:hi])
			if err != nil {
				return fmt.Errorf("definitions %d-%d: %w", lo, hi-1, err)
			}
			partials[w], stats[w] = m, st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, CountStats{}, err
	}

	counts := NewMatrix(v.Len())
	var total CountStats
	for w, partial := range partials {
		if partial == nil {
			continue
		}
		if err := counts.Merge(partial); err != nil {
			return nil, CountStats{}, err
		}
		total.add(stats[w])
	}
	return counts, total, nil
}

func countDefinitions(v *Vocabulary, defs []Definition) (*Matrix, CountStats, error) {
	counts := NewMatrix(v.Len())
	var stats CountStats
	for i, def := range defs {
		stats.Definitions++
		def = withoutSentinels(def)
		if len(def) == 0 {
			stats.Skipped++
			continue
		}
		n, err := countDefinition(counts, v, def)
		if err != nil {
			return nil, stats, fmt.Errorf("definition %d: %w", i, err)
		}
		stats.Transitions += n
	}
	return counts, stats, nil
}

// withoutSentinels returns def with any sentinel text removed. def is only
// copied when it holds such a token.
func withoutSentinels(def Definition) Definition {
	for i, token := range def {
		if !isSentinel(token) {
			continue
		}
		out := append(Definition{}, def[:i]...)
		for _, t := range def[i+1:] {
			if !isSentinel(t) {
				out = append(out, t)
			}
		}
		return out
	}
	return def
}

// countDefinition adds the transitions of a single non-empty definition to
// counts and returns how many were emitted.
func countDefinition(counts *Matrix, v *Vocabulary, def Definition) (int, error) {
	prev := v.StartID()
	for _, token := range def {
		next, err := v.ID(token)
		if err != nil {
			return 0, err
		}
		counts.Add(prev, next, 1)
		prev = next
	}
	counts.Add(prev, v.EndID(), 1)
	return len(def) + 1, nil
}
