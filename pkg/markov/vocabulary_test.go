package markov

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestBuildVocabulary(t *testing.T) {
	v := BuildVocabulary(scenarioCorpus())

	expected := []string{"the", "cat", "sat", "dog", "ran", StartTokenText, EndTokenText}
	if got := v.Tokens(); !reflect.DeepEqual(got, expected) {
		t.Fatalf("Tokens() = %v, want %v", got, expected)
	}
	if v.Len() != 7 {
		t.Errorf("Len() = %d, want 7", v.Len())
	}
	if v.StartID() != 5 || v.EndID() != 6 {
		t.Errorf("sentinel ids = (%d, %d), want (5, 6)", v.StartID(), v.EndID())
	}

	for want, token := range expected {
		id, err := v.ID(token)
		if err != nil {
			t.Fatalf("ID(%q) failed: %v", token, err)
		}
		if id != want {
			t.Errorf("ID(%q) = %d, want %d", token, id, want)
		}
		text, err := v.Token(id)
		if err != nil {
			t.Fatalf("Token(%d) failed: %v", id, err)
		}
		if text != token {
			t.Errorf("Token(%d) = %q, want %q", id, text, token)
		}
	}
}

func TestBuildVocabularyContiguous(t *testing.T) {
	corpora := map[string][]Definition{
		"empty":        nil,
		"only empties": {{}, {}},
		"single":       {{"alpha"}},
		"repeats":      {{"a", "b", "a"}, {"b", "c"}, {}, {"c", "a", "d"}},
	}

	for name, defs := range corpora {
		t.Run(name, func(t *testing.T) {
			v := BuildVocabulary(defs)
			seen := make(map[int]bool)
			for _, token := range v.Tokens() {
				id := v.MustID(token)
				if id < 0 || id >= v.Len() {
					t.Errorf("id %d for %q outside [0, %d)", id, token, v.Len())
				}
				if seen[id] {
					t.Errorf("id %d assigned twice", id)
				}
				seen[id] = true
			}
			if len(seen) != v.Len() {
				t.Errorf("got %d distinct ids, want %d", len(seen), v.Len())
			}
			if v.MustID(StartTokenText) != v.Len()-2 || v.MustID(EndTokenText) != v.Len()-1 {
				t.Errorf("sentinels are not the last two ids")
			}
		})
	}
}

func TestBuildVocabularyEmptyCorpus(t *testing.T) {
	v := BuildVocabulary(nil)
	if v.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", v.Len())
	}
	if v.StartID() != 0 || v.EndID() != 1 {
		t.Errorf("sentinel ids = (%d, %d), want (0, 1)", v.StartID(), v.EndID())
	}
}

func TestBuildVocabularySentinelText(t *testing.T) {
	defs := []Definition{
		{StartTokenText, "a"},
		{EndTokenText},
		{"a", EndTokenText, "b"},
	}
	v := BuildVocabulary(defs)

	expected := []string{"a", "b", StartTokenText, EndTokenText}
	if got := v.Tokens(); !reflect.DeepEqual(got, expected) {
		t.Fatalf("Tokens() = %v, want %v", got, expected)
	}
	for id, token := range expected {
		if got := v.MustID(token); got != id {
			t.Errorf("ID(%q) = %d, want %d", token, got, id)
		}
	}
	if _, err := NewVocabulary(v.Tokens()); err != nil {
		t.Errorf("NewVocabulary(Tokens()) failed: %v", err)
	}

	counts, stats, err := countDefinitions(v, defs)
	if err != nil {
		t.Fatalf("countDefinitions() failed: %v", err)
	}
	if stats.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", stats.Skipped)
	}
	a, b := v.MustID("a"), v.MustID("b")
	expectedCounts := map[[2]int]float64{
		{v.StartID(), a}: 2,
		{a, v.EndID()}:   1,
		{a, b}:           1,
		{b, v.EndID()}:   1,
	}
	if counts.NonZero() != len(expectedCounts) {
		t.Errorf("NonZero() = %d, want %d", counts.NonZero(), len(expectedCounts))
	}
	for cell, want := range expectedCounts {
		if got := counts.At(cell[0], cell[1]); got != want {
			t.Errorf("T[%d][%d] = %v, want %v", cell[0], cell[1], got, want)
		}
	}
	// The caller's definition is left untouched.
	if defs[2][1] != EndTokenText {
		t.Errorf("definition was modified: %v", defs[2])
	}
}

func TestVocabularyUnknownToken(t *testing.T) {
	v := BuildVocabulary(scenarioCorpus())

	if _, err := v.ID("zebra"); !errors.Is(err, ErrUnknownToken) {
		t.Errorf("ID(zebra) error = %v, want ErrUnknownToken", err)
	}
	if _, err := v.Token(7); !errors.Is(err, ErrUnknownToken) {
		t.Errorf("Token(7) error = %v, want ErrUnknownToken", err)
	}
	if _, err := v.Token(-1); !errors.Is(err, ErrUnknownToken) {
		t.Errorf("Token(-1) error = %v, want ErrUnknownToken", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("MustID(zebra) did not panic")
		}
	}()
	v.MustID("zebra")
}

func TestNewVocabulary(t *testing.T) {
	testCases := []struct {
		name        string
		tokens      []string
		expectError bool
	}{
		{name: "sentinels only", tokens: []string{StartTokenText, EndTokenText}},
		{name: "corpus tokens", tokens: []string{"a", "b", StartTokenText, EndTokenText}},
		{name: "empty", tokens: nil, expectError: true},
		{name: "missing sentinels", tokens: []string{"a", "b"}, expectError: true},
		{name: "sentinels swapped", tokens: []string{"a", EndTokenText, StartTokenText}, expectError: true},
		{name: "duplicate token", tokens: []string{"a", "a", StartTokenText, EndTokenText}, expectError: true},
		{name: "sentinel inside corpus", tokens: []string{StartTokenText, StartTokenText, EndTokenText}, expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := NewVocabulary(tc.tokens)
			if tc.expectError {
				if err == nil {
					t.Errorf("expected an error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("got unexpected error: %v", err)
			}
			if !reflect.DeepEqual(v.Tokens(), tc.tokens) {
				t.Errorf("Tokens() = %v, want %v", v.Tokens(), tc.tokens)
			}
		})
	}
}

func TestVocabularyJSON(t *testing.T) {
	v := BuildVocabulary(scenarioCorpus())
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Vocabulary
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !reflect.DeepEqual(decoded.Tokens(), v.Tokens()) {
		t.Errorf("decoded tokens = %v, want %v", decoded.Tokens(), v.Tokens())
	}
	if decoded.MustID("dog") != 3 {
		t.Errorf("decoded id of dog = %d, want 3", decoded.MustID("dog"))
	}

	if err := json.Unmarshal([]byte(`["a","b"]`), &decoded); err == nil {
		t.Error("expected an error decoding a vocabulary without sentinels")
	}
}
