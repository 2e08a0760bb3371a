package markov

// ModelStats holds aggregated statistics for a single model.
type ModelStats struct {
	VocabSize           int `json:"vocab_size"`           // N, sentinels included
	DistinctTransitions int `json:"distinct_transitions"` // nonzero cells of the matrix
	TotalTransitions    int `json:"total_transitions"`    // sum of all counts; zero for probability-only models
	StartingTokens      int `json:"starting_tokens"`      // distinct tokens that follow START
	DeadEnds            int `json:"dead_ends"`            // non-END states without any successor
	Definitions         int `json:"definitions"`          // definitions counted at training time
	SkippedDefinitions  int `json:"skipped_definitions"`  // zero-length definitions skipped at training time
}

// Degenerate reports whether the model holds only the two sentinels, in which
// case every generation fails immediately.
func (s ModelStats) Degenerate() bool {
	return s.VocabSize <= 2
}

// Stats returns a snapshot of the model's statistics.
func (m *Model) Stats() ModelStats {
	end := m.vocab.EndID()
	var deadEnds int
	for i := 0; i < m.probs.Size(); i++ {
		if i != end && m.probs.RowLen(i) == 0 {
			deadEnds++
		}
	}
	stats := ModelStats{
		VocabSize:           m.vocab.Len(),
		DistinctTransitions: m.probs.NonZero(),
		StartingTokens:      m.probs.RowLen(m.vocab.StartID()),
		DeadEnds:            deadEnds,
		Definitions:         m.stats.Definitions,
		SkippedDefinitions:  m.stats.Skipped,
	}
	if m.counts != nil {
		stats.TotalTransitions = int(m.counts.Total())
	}
	return stats
}
