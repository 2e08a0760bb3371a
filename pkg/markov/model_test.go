package markov

import (
	"context"
	"errors"
	"testing"
)

func TestTrainStats(t *testing.T) {
	defs := append(scenarioCorpus(), Definition{})
	m, err := Train(context.Background(), defs)
	if err != nil {
		t.Fatalf("Train() failed: %v", err)
	}

	expected := ModelStats{
		VocabSize:           7,
		DistinctTransitions: 7,
		TotalTransitions:    8,
		StartingTokens:      1,
		DeadEnds:            0,
		Definitions:         3,
		SkippedDefinitions:  1,
	}
	if got := m.Stats(); got != expected {
		t.Errorf("Stats() = %+v, want %+v", got, expected)
	}
	if m.Stats().Degenerate() {
		t.Error("scenario model reported as degenerate")
	}
}

func TestTrainOnlyEmptyDefinitions(t *testing.T) {
	m, err := Train(context.Background(), []Definition{{}, {}})
	if err != nil {
		t.Fatalf("Train() failed: %v", err)
	}
	st := m.Stats()
	if !st.Degenerate() || st.DistinctTransitions != 0 || st.SkippedDefinitions != 2 {
		t.Errorf("Stats() = %+v, want a degenerate model with 2 skipped definitions", st)
	}
	if _, err := m.Generate(context.Background(), newTestRand(3)); !errors.Is(err, ErrExhaustedPath) {
		t.Errorf("Generate() error = %v, want ErrExhaustedPath", err)
	}
}

func TestNewModelSizeMismatch(t *testing.T) {
	vocab := BuildVocabulary(scenarioCorpus())
	if _, err := NewModel(vocab, NewMatrix(3)); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("NewModel() error = %v, want ErrSizeMismatch", err)
	}
	if _, err := NewModelFromProbabilities(vocab, NewMatrix(3)); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("NewModelFromProbabilities() error = %v, want ErrSizeMismatch", err)
	}
}

func TestNewModelNormalizes(t *testing.T) {
	trained := trainTestModel(t, scenarioCorpus())
	m, err := NewModel(trained.Vocabulary(), trained.Counts().Clone())
	if err != nil {
		t.Fatalf("NewModel() failed: %v", err)
	}
	assertRowStochastic(t, m.Counts(), m.Probabilities())
	if m.Stats().TotalTransitions != 8 {
		t.Errorf("TotalTransitions = %d, want 8", m.Stats().TotalTransitions)
	}
}

func TestGenerateNNonPositive(t *testing.T) {
	m := trainTestModel(t, scenarioCorpus())
	testCases := []struct {
		name string
		n    int
	}{
		{"zero", 0},
		{"negative", -1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := m.GenerateN(context.Background(), newTestRand(1), tc.n, 0)
			if err != nil {
				t.Fatalf("GenerateN() failed: %v", err)
			}
			if len(out) != 0 {
				t.Errorf("GenerateN() = %q, want no definitions", out)
			}
		})
	}
}
