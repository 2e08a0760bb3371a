package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/CTAG07/defgen/pkg/markov"
	"github.com/CTAG07/defgen/pkg/render"
	"github.com/google/uuid"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var errUsage = errors.New("usage")

// App carries the state shared by every command of one run.
type App struct {
	config *Config
	logger *slog.Logger
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// confirm asks a yes/no question. Tests replace it.
	confirm func(question string) (bool, error)

	db    *sql.DB
	store *markov.Store
}

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, app *App, args []string) error
}

var commands = []command{
	{"train", "parse a corpus, build a model and store it", cmdTrain},
	{"generate", "generate definitions from a stored model", cmdGenerate},
	{"export", "write a stored model as JSON", cmdExport},
	{"import", "read a model from JSON into the store", cmdImport},
	{"prune", "drop rare transitions from a stored model", cmdPrune},
	{"remove", "delete a stored model", cmdRemove},
	{"stats", "show statistics for stored models", cmdStats},
	{"serve", "run the HTTP API", cmdServe},
	{"version", "print build information", cmdVersion},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "defgen: %v\n", err)
		}
		os.Exit(1)
	}
}

// run parses the global flags, loads the configuration and dispatches to a command.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("defgen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "./defgen.json", "path to the JSON configuration file")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: defgen [-config path] <command> [flags]\n\nCommands:\n")
		for _, c := range commands {
			fmt.Fprintf(stderr, "  %-10s %s\n", c.name, c.summary)
		}
		fmt.Fprintf(stderr, "\nGlobal flags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return errUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	name := fs.Arg(0)
	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
			break
		}
	}
	if cmd == nil {
		fmt.Fprintf(stderr, "defgen: unknown command %q\n", name)
		fs.Usage()
		return errUsage
	}

	config, err := LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	app, err := newApp(config, stdin, stdout, stderr)
	if err != nil {
		return err
	}
	defer app.Close()

	app.logger.Debug("Running command", slog.String("command", cmd.name))
	return cmd.run(ctx, app, fs.Args()[1:])
}

func newApp(config *Config, stdin io.Reader, stdout, stderr io.Writer) (*App, error) {
	level, err := parseLogLevel(config.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})).
		With(slog.String("run_id", uuid.NewString()))

	app := &App{
		config: config,
		logger: logger,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}
	app.confirm = func(question string) (bool, error) {
		return confirm(app.stdin, app.stdout, question)
	}
	return app, nil
}

// Store opens the model database on first use.
func (app *App) Store() (*markov.Store, error) {
	if app.store != nil {
		return app.store, nil
	}

	path := app.config.Model.DatabasePath
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := initDB(path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err = markov.SetupSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to setup markov schema: %w", err)
	}
	store, err := markov.NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create model store: %w", err)
	}
	store.SetLogger(app.logger)

	app.db = db
	app.store = store
	return store, nil
}

// Renderer builds the output renderer from the configured template file or
// inline template.
func (app *App) Renderer() (*render.Renderer, error) {
	var r *render.Renderer
	var err error
	if path := app.config.Generate.TemplateFile; path != "" {
		r, err = render.NewRendererFromFile(path)
	} else {
		r, err = render.NewRenderer(app.config.Generate.Template)
	}
	if err != nil {
		return nil, err
	}
	r.SetLogger(app.logger)
	return r, nil
}

// Close releases the database, if one was opened.
func (app *App) Close() {
	if app.store != nil {
		app.store.Close()
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Failed to close database", "error", err)
		}
	}
}

// withParams appends driver connection parameters to a database path.
func withParams(path, params string) string {
	if strings.Contains(path, "?") {
		return path + "&" + params
	}
	return path + "?" + params
}

// newRand returns a PCG generator for seed. A zero seed picks a random one.
func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
