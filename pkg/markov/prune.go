package markov

import (
	"context"
	"fmt"
	"log/slog"
)

// PruneModel removes every transition of the named model whose frequency is
// less than or equal to minFreq, and returns how many were removed. This is
// useful for reducing the size of a model by removing rare, and often noisy,
// transitions. Tokens left without successors become dead ends.
func (s *Store) PruneModel(ctx context.Context, name string, minFreq int) (int64, error) {
	info, err := s.GetModelInfo(ctx, name)
	if err != nil {
		return 0, err
	}

	res, err := s.stmtPruneModel.ExecContext(ctx, info.Id, minFreq)
	if err != nil {
		return 0, fmt.Errorf("could not prune model %d: %w", info.Id, err)
	}
	rowsAffected, _ := res.RowsAffected()

	s.logger.InfoContext(ctx, "Model pruned",
		slog.String("model_name", info.Name),
		slog.Int("model_id", info.Id),
		slog.Int("min_frequency", minFreq),
		slog.Int64("transitions_removed", rowsAffected),
	)
	return rowsAffected, nil
}
