package markov

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// SetupSchema initializes the tables used by Store in the provided database.
// It is idempotent and safe to call on an already-initialized database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaModels = `
CREATE TABLE IF NOT EXISTS defgen_models (
    model_id INTEGER PRIMARY KEY,
    model_name TEXT NOT NULL UNIQUE,
    vocab_size INTEGER NOT NULL,
    definitions INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0
);
`
		schemaVocab = `
CREATE TABLE IF NOT EXISTS defgen_vocabulary (
    model_id INTEGER NOT NULL,
    token_id INTEGER NOT NULL,
    token_text TEXT NOT NULL,
    PRIMARY KEY (model_id, token_id)
);
`
		schemaTransitions = `
CREATE TABLE IF NOT EXISTS defgen_transitions (
    model_id INTEGER NOT NULL,
    from_id INTEGER NOT NULL,
    to_id INTEGER NOT NULL,
    frequency INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (model_id, from_id, to_id)
);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	// If the transaction succeeds, tx.Commit() will be called first, and the rollback will do nothing.
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaModels); err != nil {
		return fmt.Errorf("could not create models schema: %w", err)
	}

	if _, err = tx.Exec(schemaVocab); err != nil {
		return fmt.Errorf("could not create vocabulary schema: %w", err)
	}

	if _, err = tx.Exec(schemaTransitions); err != nil {
		return fmt.Errorf("could not create transitions schema: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// ModelInfo holds the metadata of a stored model.
type ModelInfo struct {
	Id          int    `json:"id"`
	Name        string `json:"name"`
	VocabSize   int    `json:"vocab_size"`
	Definitions int    `json:"definitions"`
	Skipped     int    `json:"skipped"`
}

// Store persists models in a SQL database: each model keeps its own ordered
// vocabulary and its sparse transition counts. Probabilities are never
// stored; they are recomputed from the counts on load.
type Store struct {
	db                   *sql.DB
	stmtGetModelInfo     *sql.Stmt
	stmtGetModels        *sql.Stmt
	stmtPruneModel       *sql.Stmt
	stmtModelChains      *sql.Stmt
	stmtModelFreq        *sql.Stmt
	stmtModelStarters    *sql.Stmt
	stmtModelPredecessor *sql.Stmt
	stmtGetVocab         *sql.Stmt
	stmtGetTransitions   *sql.Stmt
	logger               *slog.Logger
}

// NewStore creates and returns a new Store. It pre-compiles all necessary SQL
// statements, returning an error if any preparation fails. SetupSchema must
// have been called on db.
func NewStore(db *sql.DB) (*Store, error) {
	stmtGetModelInfo, err := db.Prepare(`SELECT model_id, vocab_size, definitions, skipped FROM defgen_models WHERE model_name = ?;`)
	if err != nil {
		return nil, err
	}

	stmtGetModels, err := db.Prepare(`SELECT model_id, model_name, vocab_size, definitions, skipped FROM defgen_models;`)
	if err != nil {
		return nil, err
	}

	stmtPruneModel, err := db.Prepare(`DELETE FROM defgen_transitions WHERE model_id = ? AND frequency <= ?;`)
	if err != nil {
		return nil, err
	}

	stmtModelChains, err := db.Prepare(`SELECT COUNT(*) FROM defgen_transitions WHERE model_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtModelFreq, err := db.Prepare(`SELECT coalesce(SUM(frequency), 0) FROM defgen_transitions WHERE model_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtModelStarters, err := db.Prepare(`SELECT COUNT(*) FROM defgen_transitions WHERE model_id = ? AND from_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtModelPredecessor, err := db.Prepare(`SELECT COUNT(DISTINCT from_id) FROM defgen_transitions WHERE model_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtGetVocab, err := db.Prepare(`SELECT token_id, token_text FROM defgen_vocabulary WHERE model_id = ? ORDER BY token_id;`)
	if err != nil {
		return nil, err
	}

	stmtGetTransitions, err := db.Prepare(`SELECT from_id, to_id, frequency FROM defgen_transitions WHERE model_id = ?;`)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:                   db,
		stmtGetModelInfo:     stmtGetModelInfo,
		stmtGetModels:        stmtGetModels,
		stmtPruneModel:       stmtPruneModel,
		stmtModelChains:      stmtModelChains,
		stmtModelFreq:        stmtModelFreq,
		stmtModelStarters:    stmtModelStarters,
		stmtModelPredecessor: stmtModelPredecessor,
		stmtGetVocab:         stmtGetVocab,
		stmtGetTransitions:   stmtGetTransitions,
		logger:               slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// Close releases all prepared SQL statements held by the Store.
func (s *Store) Close() {
	_ = s.stmtGetModelInfo.Close()
	_ = s.stmtGetModels.Close()
	_ = s.stmtPruneModel.Close()
	_ = s.stmtModelChains.Close()
	_ = s.stmtModelFreq.Close()
	_ = s.stmtModelStarters.Close()
	_ = s.stmtModelPredecessor.Close()
	_ = s.stmtGetVocab.Close()
	_ = s.stmtGetTransitions.Close()
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// GetModelInfos retrieves metadata for all stored models, keyed by name.
func (s *Store) GetModelInfos(ctx context.Context) (map[string]ModelInfo, error) {
	rows, err := s.stmtGetModels.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	models := make(map[string]ModelInfo)
	for rows.Next() {
		var model ModelInfo
		if err = rows.Scan(&model.Id, &model.Name, &model.VocabSize, &model.Definitions, &model.Skipped); err != nil {
			return nil, err
		}
		models[model.Name] = model
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return models, nil
}

// GetModelInfo retrieves the metadata of a single model. A missing model
// returns an error wrapping ErrModelNotFound.
func (s *Store) GetModelInfo(ctx context.Context, name string) (ModelInfo, error) {
	info := ModelInfo{Name: name}
	err := s.stmtGetModelInfo.QueryRowContext(ctx, name).Scan(&info.Id, &info.VocabSize, &info.Definitions, &info.Skipped)
	if errors.Is(err, sql.ErrNoRows) {
		return ModelInfo{}, fmt.Errorf("%w: %q", ErrModelNotFound, name)
	}
	if err != nil {
		return ModelInfo{}, err
	}
	return info, nil
}
