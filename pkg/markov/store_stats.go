package markov

import (
	"context"
	"sort"
)

// DBStats holds aggregated statistics for every model in a Store.
type DBStats struct {
	Models []ModelInfo        // models ordered by name
	Stats  map[int]ModelStats // model id -> stats
}

// Stats returns a snapshot of statistics for all stored models, computed in
// the database without loading any matrix.
func (s *Store) Stats(ctx context.Context) (*DBStats, error) {
	infos, err := s.GetModelInfos(ctx)
	if err != nil {
		return nil, err
	}

	models := make([]ModelInfo, 0, len(infos))
	for _, info := range infos {
		models = append(models, info)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })

	stats := make(map[int]ModelStats, len(models))
	for _, info := range models {
		st, err := s.modelStats(ctx, info)
		if err != nil {
			return nil, err
		}
		stats[info.Id] = st
	}
	return &DBStats{Models: models, Stats: stats}, nil
}

// ModelStats returns the statistics of a single stored model.
func (s *Store) ModelStats(ctx context.Context, name string) (ModelStats, error) {
	info, err := s.GetModelInfo(ctx, name)
	if err != nil {
		return ModelStats{}, err
	}
	return s.modelStats(ctx, info)
}

func (s *Store) modelStats(ctx context.Context, info ModelInfo) (ModelStats, error) {
	st := ModelStats{
		VocabSize:          info.VocabSize,
		Definitions:        info.Definitions,
		SkippedDefinitions: info.Skipped,
	}
	if err := s.stmtModelChains.QueryRowContext(ctx, info.Id).Scan(&st.DistinctTransitions); err != nil {
		return ModelStats{}, err
	}
	if err := s.stmtModelFreq.QueryRowContext(ctx, info.Id).Scan(&st.TotalTransitions); err != nil {
		return ModelStats{}, err
	}
	// START is always vocab_size-2.
	if err := s.stmtModelStarters.QueryRowContext(ctx, info.Id, info.VocabSize-2).Scan(&st.StartingTokens); err != nil {
		return ModelStats{}, err
	}
	var predecessors int
	if err := s.stmtModelPredecessor.QueryRowContext(ctx, info.Id).Scan(&predecessors); err != nil {
		return ModelStats{}, err
	}
	// END never has successors, every other state without one is a dead end.
	st.DeadEnds = info.VocabSize - 1 - predecessors
	return st, nil
}
