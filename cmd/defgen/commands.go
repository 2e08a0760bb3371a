package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/CTAG07/defgen/pkg/corpus"
	"github.com/CTAG07/defgen/pkg/markov"
	"github.com/CTAG07/defgen/pkg/matrixfile"
	"github.com/natefinch/atomic"
)

func newFlagSet(app *App, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(app.stderr)
	return fs
}

// parseCorpus reads every definition from the corpus file at path.
func parseCorpus(app *App, path string) ([]markov.Definition, error) {
	opts, err := app.config.ParserOptions()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus: %w", err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	p := corpus.NewParser(f, opts...)
	var defs []markov.Definition
	for {
		def, err := p.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	app.logger.Info("Parsed corpus",
		slog.String("path", path),
		slog.Int("lines", p.Lines()),
		slog.Int("definitions", p.Definitions()),
	)
	return defs, nil
}

func cmdTrain(ctx context.Context, app *App, args []string) error {
	fs := newFlagSet(app, "train")
	corpusPath := fs.String("corpus", app.config.Corpus.Path, "dictionary text to train on")
	name := fs.String("model", app.config.Model.DefaultModel, "name to store the model under")
	matrixPath := fs.String("matrix", app.config.Model.MatrixPath, "also write the probability matrix to this file")
	workers := fs.Int("workers", app.config.Model.TrainWorkers, "goroutines used to count transitions")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	defs, err := parseCorpus(app, *corpusPath)
	if err != nil {
		return err
	}

	m, err := markov.TrainWithLogger(ctx, defs, app.logger, markov.WithWorkers(*workers))
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	store, err := app.Store()
	if err != nil {
		return err
	}
	info, err := store.SaveModel(ctx, *name, m)
	if err != nil {
		return fmt.Errorf("failed to save model: %w", err)
	}

	if *matrixPath != "" {
		if err = matrixfile.Save(*matrixPath, m.Probabilities(), m.Vocabulary()); err != nil {
			return err
		}
		app.logger.Info("Wrote matrix file", slog.String("path", *matrixPath))
	}

	st := m.Stats()
	fmt.Fprintf(app.stdout, "Trained model %q: %d definitions (%d skipped), %d tokens, %d distinct transitions\n",
		info.Name, st.Definitions, st.SkippedDefinitions, st.VocabSize, st.DistinctTransitions)
	if st.Degenerate() {
		app.logger.Warn("Model holds no tokens; generation will always fail", slog.String("model", info.Name))
	}
	return nil
}

func cmdGenerate(ctx context.Context, app *App, args []string) error {
	fs := newFlagSet(app, "generate")
	name := fs.String("model", app.config.Model.DefaultModel, "stored model to generate from")
	matrixPath := fs.String("matrix", "", "read the model from this matrix file instead of the database")
	n := fs.Int("n", 1, "number of definitions to generate")
	seed := fs.Uint64("seed", app.config.Generate.Seed, "random seed; 0 picks one")
	retries := fs.Int("retries", app.config.Generate.Retries, "attempts to repeat an exhausted generation")
	strategy := fs.String("strategy", app.config.Generate.Strategy, "sampling strategy: threshold or cumulative")
	maxLength := fs.Int("max-length", app.config.Generate.MaxLength, "maximum tokens per definition; 0 is unbounded")
	interactive := fs.Bool("interactive", false, "ask to generate another definition after each one")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *n < 1 {
		return fmt.Errorf("-n must be at least 1")
	}

	app.config.Generate.Strategy = *strategy
	app.config.Generate.MaxLength = *maxLength
	opts, err := app.config.SampleOptions()
	if err != nil {
		return err
	}

	m, label, err := loadModel(ctx, app, *name, *matrixPath)
	if err != nil {
		return err
	}
	renderer, err := app.Renderer()
	if err != nil {
		return err
	}
	rng := newRand(*seed)

	for {
		defs, err := m.GenerateN(ctx, rng, *n, *retries, opts...)
		if rerr := renderer.RenderAll(app.stdout, label, defs); rerr != nil {
			return rerr
		}
		if err != nil {
			if !*interactive || !errors.Is(err, markov.ErrExhaustedPath) {
				return err
			}
			fmt.Fprintf(app.stdout, "No definition: %v\n", err)
		}
		if !*interactive {
			return nil
		}

		again, err := app.confirm("Generate another definition?")
		if err != nil {
			return err
		}
		if !again {
			return nil
		}
	}
}

// loadModel reads a model from the matrix file when one is given, otherwise
// from the database.
func loadModel(ctx context.Context, app *App, name, matrixPath string) (*markov.Model, string, error) {
	if matrixPath != "" {
		probs, vocab, err := matrixfile.Load(matrixPath)
		if err != nil {
			return nil, "", err
		}
		m, err := markov.NewModelFromProbabilities(vocab, probs)
		if err != nil {
			return nil, "", err
		}
		m.SetLogger(app.logger)
		return m, matrixPath, nil
	}

	store, err := app.Store()
	if err != nil {
		return nil, "", err
	}
	m, err := store.LoadModel(ctx, name)
	if err != nil {
		return nil, "", err
	}
	m.SetLogger(app.logger)
	return m, name, nil
}

func cmdExport(ctx context.Context, app *App, args []string) error {
	fs := newFlagSet(app, "export")
	name := fs.String("model", app.config.Model.DefaultModel, "stored model to export")
	out := fs.String("out", "-", "output file; - writes to stdout")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	store, err := app.Store()
	if err != nil {
		return err
	}
	if *out == "-" {
		return store.ExportModel(ctx, *name, app.stdout)
	}

	var buf bytes.Buffer
	if err = store.ExportModel(ctx, *name, &buf); err != nil {
		return err
	}
	if err = atomic.WriteFile(*out, &buf); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	app.logger.Info("Exported model", slog.String("model", *name), slog.String("path", *out))
	return nil
}

func cmdImport(ctx context.Context, app *App, args []string) error {
	fs := newFlagSet(app, "import")
	in := fs.String("in", "-", "input file; - reads from stdin")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	var r io.Reader = app.stdin
	if *in != "-" {
		f, err := os.Open(*in)
		if err != nil {
			return fmt.Errorf("failed to open import file: %w", err)
		}
		defer func(f *os.File) {
			_ = f.Close()
		}(f)
		r = f
	}

	store, err := app.Store()
	if err != nil {
		return err
	}
	info, err := store.ImportModel(ctx, r)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.stdout, "Imported model %q: %d tokens\n", info.Name, info.VocabSize)
	return nil
}

func cmdPrune(ctx context.Context, app *App, args []string) error {
	fs := newFlagSet(app, "prune")
	name := fs.String("model", app.config.Model.DefaultModel, "stored model to prune")
	minFreq := fs.Int("min-freq", 1, "remove transitions seen this many times or fewer")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	store, err := app.Store()
	if err != nil {
		return err
	}
	removed, err := store.PruneModel(ctx, *name, *minFreq)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.stdout, "Removed %d transitions from %q\n", removed, *name)
	return nil
}

func cmdRemove(ctx context.Context, app *App, args []string) error {
	fs := newFlagSet(app, "remove")
	name := fs.String("model", "", "stored model to delete")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *name == "" {
		return fmt.Errorf("-model is required")
	}

	store, err := app.Store()
	if err != nil {
		return err
	}
	return store.RemoveModel(ctx, *name)
}

func cmdStats(ctx context.Context, app *App, args []string) error {
	fs := newFlagSet(app, "stats")
	name := fs.String("model", "", "only show this model")
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	store, err := app.Store()
	if err != nil {
		return err
	}

	var infos []markov.ModelInfo
	stats := make(map[int]markov.ModelStats)
	if *name != "" {
		info, err := store.GetModelInfo(ctx, *name)
		if err != nil {
			return err
		}
		st, err := store.ModelStats(ctx, *name)
		if err != nil {
			return err
		}
		infos = []markov.ModelInfo{info}
		stats[info.Id] = st
	} else {
		all, err := store.Stats(ctx)
		if err != nil {
			return err
		}
		infos = all.Models
		stats = all.Stats
	}

	if *asJSON {
		type entry struct {
			markov.ModelInfo
			Stats markov.ModelStats `json:"stats"`
		}
		out := make([]entry, 0, len(infos))
		for _, info := range infos {
			out = append(out, entry{ModelInfo: info, Stats: stats[info.Id]})
		}
		enc := json.NewEncoder(app.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	tw := tabwriter.NewWriter(app.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tTOKENS\tTRANSITIONS\tCOUNT\tSTARTERS\tDEAD ENDS\tDEFINITIONS\tSKIPPED")
	for _, info := range infos {
		st := stats[info.Id]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
			info.Name, st.VocabSize, st.DistinctTransitions, st.TotalTransitions,
			st.StartingTokens, st.DeadEnds, st.Definitions, st.SkippedDefinitions)
	}
	return tw.Flush()
}

func cmdServe(ctx context.Context, app *App, args []string) error {
	fs := newFlagSet(app, "serve")
	addr := fs.String("addr", app.config.Server.ApiAddr, "address to listen on")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	app.config.Server.ApiAddr = *addr
	if _, err := app.config.SampleOptions(); err != nil {
		return err
	}

	store, err := app.Store()
	if err != nil {
		return err
	}
	renderer, err := app.Renderer()
	if err != nil {
		return err
	}
	return NewServer(app.config, app.logger, store, renderer, NewMetrics()).Run(ctx)
}

// VersionInfo defines the structure for build/version information.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

func cmdVersion(_ context.Context, app *App, args []string) error {
	fs := newFlagSet(app, "version")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	info := VersionInfo{Version: Version, Commit: Commit, BuildDate: BuildDate}
	if *asJSON {
		return json.NewEncoder(app.stdout).Encode(info)
	}
	fmt.Fprintf(app.stdout, "defgen %s (commit %s, built %s)\n", info.Version, info.Commit, info.BuildDate)
	return nil
}
