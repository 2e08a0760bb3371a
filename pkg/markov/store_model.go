package markov

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// ExportedModel is the serializable representation of a stored model, used
// for JSON-based import and export.
type ExportedModel struct {
	Name        string               `json:"name"`
	Definitions int                  `json:"definitions"`
	Skipped     int                  `json:"skipped"`
	Vocabulary  []string             `json:"vocabulary"` // ordered by token id
	Transitions []ExportedTransition `json:"transitions"`
}

// ExportedTransition is a single nonzero cell of an exported count matrix.
type ExportedTransition struct {
	From      int `json:"from"`
	To        int `json:"to"`
	Frequency int `json:"frequency"`
}

// errNoCounts is returned when a probability-only model is saved.
var errNoCounts = errors.New("model has no transition counts")

// SaveModel stores a trained model under name. Any model already stored
// under that name is replaced. The whole operation runs in one transaction.
func (s *Store) SaveModel(ctx context.Context, name string, m *Model) (ModelInfo, error) {
	if m.counts == nil {
		return ModelInfo{}, fmt.Errorf("cannot save model '%s': %w", name, errNoCounts)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("could not begin transaction for save: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if err = deleteModelTx(ctx, tx, name); err != nil {
		return ModelInfo{}, err
	}

	info := ModelInfo{
		Name:        name,
		VocabSize:   m.vocab.Len(),
		Definitions: m.stats.Definitions,
		Skipped:     m.stats.Skipped,
	}
	res, err := tx.ExecContext(ctx, "INSERT INTO defgen_models (model_name, vocab_size, definitions, skipped) VALUES (?, ?, ?, ?)",
		info.Name, info.VocabSize, info.Definitions, info.Skipped)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("failed to insert model '%s': %w", name, err)
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return ModelInfo{}, err
	}
	info.Id = int(newID)

	stmtInsertVocab, err := tx.PrepareContext(ctx, `INSERT INTO defgen_vocabulary (model_id, token_id, token_text) VALUES (?, ?, ?);`)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("failed to prepare vocabulary insert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsertVocab)

	for id, text := range m.vocab.tokens {
		if _, err = stmtInsertVocab.ExecContext(ctx, info.Id, id, text); err != nil {
			return ModelInfo{}, fmt.Errorf("failed to insert vocabulary token '%s': %w", text, err)
		}
	}

	stmtInsertTransition, err := tx.PrepareContext(ctx, `INSERT INTO defgen_transitions (model_id, from_id, to_id, frequency) VALUES (?, ?, ?, ?);`)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("failed to prepare transition insert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsertTransition)

	var transitions int
	for from := 0; from < m.counts.Size(); from++ {
		for _, e := range m.counts.Row(from) {
			if _, err = stmtInsertTransition.ExecContext(ctx, info.Id, from, e.Col, int64(e.Value)); err != nil {
				return ModelInfo{}, fmt.Errorf("failed to insert transition (%d -> %d): %w", from, e.Col, err)
			}
			transitions++
		}
	}

	if err = tx.Commit(); err != nil {
		return ModelInfo{}, err
	}

	s.logger.InfoContext(ctx, "Model saved",
		slog.String("model_name", info.Name),
		slog.Int("model_id", info.Id),
		slog.Int("vocab_size", info.VocabSize),
		slog.Int("transitions_saved", transitions),
	)
	return info, nil
}

// LoadModel reads a stored model back and normalizes its counts. A missing
// model returns an error wrapping ErrModelNotFound.
func (s *Store) LoadModel(ctx context.Context, name string) (*Model, error) {
	info, err := s.GetModelInfo(ctx, name)
	if err != nil {
		return nil, err
	}

	rows, err := s.stmtGetVocab.QueryContext(ctx, info.Id)
	if err != nil {
		return nil, fmt.Errorf("could not query vocabulary for model '%s': %w", name, err)
	}
	tokens := make([]string, 0, info.VocabSize)
	for rows.Next() {
		var id int
		var text string
		if err = rows.Scan(&id, &text); err != nil {
			_ = rows.Close()
			return nil, err
		}
		if id != len(tokens) {
			_ = rows.Close()
			return nil, fmt.Errorf("vocabulary of model '%s' is not contiguous at id %d", name, id)
		}
		tokens = append(tokens, text)
	}
	_ = rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	vocab, err := NewVocabulary(tokens)
	if err != nil {
		return nil, fmt.Errorf("invalid vocabulary for model '%s': %w", name, err)
	}

	counts := NewMatrix(vocab.Len())
	tRows, err := s.stmtGetTransitions.QueryContext(ctx, info.Id)
	if err != nil {
		return nil, fmt.Errorf("could not query transitions for model '%s': %w", name, err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(tRows)
	for tRows.Next() {
		var from, to, freq int
		if err = tRows.Scan(&from, &to, &freq); err != nil {
			return nil, err
		}
		if from < 0 || from >= vocab.Len() || to < 0 || to >= vocab.Len() {
			return nil, fmt.Errorf("transition (%d -> %d) of model '%s' is outside the vocabulary", from, to, name)
		}
		counts.Set(from, to, float64(freq))
	}
	if err = tRows.Err(); err != nil {
		return nil, err
	}

	m, err := NewModel(vocab, counts)
	if err != nil {
		return nil, err
	}
	m.stats.Definitions = info.Definitions
	m.stats.Skipped = info.Skipped

	s.logger.DebugContext(ctx, "Model loaded",
		slog.String("model_name", name),
		slog.Int("model_id", info.Id),
		slog.Int("vocab_size", vocab.Len()),
		slog.Int("distinct_transitions", counts.NonZero()),
	)
	return m, nil
}

// RemoveModel deletes a model together with its vocabulary and transitions.
// Removing a model that does not exist is not an error.
func (s *Store) RemoveModel(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if err = deleteModelTx(ctx, tx, name); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Model removed successfully", slog.String("model_name", name))
	return tx.Commit()
}

func deleteModelTx(ctx context.Context, tx *sql.Tx, name string) error {
	var modelID int
	err := tx.QueryRowContext(ctx, "SELECT model_id FROM defgen_models WHERE model_name = ?", name).Scan(&modelID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to query for model '%s': %w", name, err)
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM defgen_transitions WHERE model_id = ?", modelID); err != nil {
		return fmt.Errorf("failed to remove transitions for model %d: %w", modelID, err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM defgen_vocabulary WHERE model_id = ?", modelID); err != nil {
		return fmt.Errorf("failed to remove vocabulary for model %d: %w", modelID, err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM defgen_models WHERE model_id = ?", modelID); err != nil {
		return fmt.Errorf("failed to remove model %d: %w", modelID, err)
	}
	return nil
}

// ExportModel serializes a stored model into JSON and writes it to w. This
// is useful for backups or for moving models between databases.
func (s *Store) ExportModel(ctx context.Context, name string, w io.Writer) error {
	m, err := s.LoadModel(ctx, name)
	if err != nil {
		return err
	}

	exported := ExportedModel{
		Name:        name,
		Definitions: m.stats.Definitions,
		Skipped:     m.stats.Skipped,
		Vocabulary:  m.vocab.Tokens(),
		Transitions: make([]ExportedTransition, 0, m.counts.NonZero()),
	}
	for from := 0; from < m.counts.Size(); from++ {
		for _, e := range m.counts.Row(from) {
			exported.Transitions = append(exported.Transitions, ExportedTransition{From: from, To: e.Col, Frequency: int(e.Value)})
		}
	}

	s.logger.InfoContext(ctx, "Model exported",
		slog.String("model_name", name),
		slog.Int("vocab_items_exported", len(exported.Vocabulary)),
		slog.Int("transitions_exported", len(exported.Transitions)),
	)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exported)
}

// ImportModel reads a JSON model produced by ExportModel and stores it,
// replacing any model of the same name. Models are never merged: a merged
// vocabulary would have to renumber the sentinels.
func (s *Store) ImportModel(ctx context.Context, r io.Reader) (ModelInfo, error) {
	var imported ExportedModel
	if err := json.NewDecoder(r).Decode(&imported); err != nil {
		return ModelInfo{}, fmt.Errorf("failed to decode json model: %w", err)
	}
	if imported.Name == "" {
		return ModelInfo{}, errors.New("imported model has no name")
	}

	vocab, err := NewVocabulary(imported.Vocabulary)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("invalid vocabulary in import: %w", err)
	}

	counts := NewMatrix(vocab.Len())
	for _, t := range imported.Transitions {
		if t.From < 0 || t.From >= vocab.Len() || t.To < 0 || t.To >= vocab.Len() {
			return ModelInfo{}, fmt.Errorf("import consistency error: transition (%d -> %d) outside vocabulary of %d tokens", t.From, t.To, vocab.Len())
		}
		if t.Frequency <= 0 {
			return ModelInfo{}, fmt.Errorf("import consistency error: transition (%d -> %d) has frequency %d", t.From, t.To, t.Frequency)
		}
		counts.Add(t.From, t.To, float64(t.Frequency))
	}

	m, err := NewModel(vocab, counts)
	if err != nil {
		return ModelInfo{}, err
	}
	m.stats.Definitions = imported.Definitions
	m.stats.Skipped = imported.Skipped

	info, err := s.SaveModel(ctx, imported.Name, m)
	if err != nil {
		return ModelInfo{}, err
	}

	s.logger.InfoContext(ctx, "Model imported successfully",
		slog.String("model_name", imported.Name),
		slog.Int("target_model_id", info.Id),
		slog.Int("vocab_items_imported", len(imported.Vocabulary)),
		slog.Int("transitions_imported", len(imported.Transitions)),
	)
	return info, nil
}
