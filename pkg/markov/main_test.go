package markov

import (
	"context"
	"database/sql"
	"go/build"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// scenarioCorpus is the two-definition corpus used across tests:
// ids the=0 cat=1 sat=2 dog=3 ran=4 START=5 END=6.
func scenarioCorpus() []Definition {
	return []Definition{
		{"the", "cat", "sat"},
		{"the", "dog", "ran"},
	}
}

// setupTestStore creates a new SQLite database file and a Store for testing.
// It uses t.Cleanup to ensure resources are released.
func setupTestStore(t *testing.T) (*sql.DB, *Store) {
	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open(testDriver, dbFile)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}

	s, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(s.Close)

	return db, s
}

// setupTestStoreWithModel is a convenience helper that also trains and saves
// the scenario model.
func setupTestStoreWithModel(t *testing.T) (context.Context, *Store, *Model) {
	_, s := setupTestStore(t)
	ctx := context.Background()
	m, err := Train(ctx, scenarioCorpus())
	if err != nil {
		t.Fatalf("setup: Train() failed: %v", err)
	}
	if _, err := s.SaveModel(ctx, "test_model", m); err != nil {
		t.Fatalf("setup: SaveModel() failed: %v", err)
	}
	return ctx, s, m
}

func newTestRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// scriptedRand replays fixed draws. IntN returns ints[i] modulo n and then
// repeats the last value; Float64 does the same with floats.
type scriptedRand struct {
	ints   []int
	floats []float64
	ni, nf int
}

func (r *scriptedRand) IntN(n int) int {
	v := 0
	if len(r.ints) > 0 {
		v = r.ints[min(r.ni, len(r.ints)-1)]
		r.ni++
	}
	return v % n
}

func (r *scriptedRand) Float64() float64 {
	v := 0.0
	if len(r.floats) > 0 {
		v = r.floats[min(r.nf, len(r.floats)-1)]
		r.nf++
	}
	return v
}

var (
	benchmarkCorpus []Definition
	corpusOnce      sync.Once
)

// createBenchmarkCorpus reads Go source files and treats each paragraph as a
// definition, giving a realistically skewed vocabulary for benchmarks.
func createBenchmarkCorpus() []Definition {
	corpusOnce.Do(func() {
		var sb strings.Builder
		goRoot := build.Default.GOROOT
		filesToRead := []string{
			filepath.Join(goRoot, "src/net/http/server.go"),
			filepath.Join(goRoot, "src/go/parser/parser.go"),
			filepath.Join(goRoot, "src/encoding/json/encode.go"),
		}

		for _, file := range filesToRead {
			content, err := os.ReadFile(file)
			if err != nil {
				sb.Reset()
				sb.WriteString("this is a fallback corpus for benchmarking.\n\nit is not very long but will prevent a crash.")
				break
			}
			sb.Write(content)
			sb.WriteString("\n\n")
		}

		for _, para := range strings.Split(sb.String(), "\n\n") {
			benchmarkCorpus = append(benchmarkCorpus, strings.Fields(para))
		}
	})
	return benchmarkCorpus
}
