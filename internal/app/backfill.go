package app

import (
	"context"
	"errors"
)

// Backfill loads an existing enriched file into the database without
// re-running the pipeline.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) (int64, error) {
	path := opts.InputPath
	if path == "" {
		path = a.Config.Paths.EnrichedFile
	}

	rows, _, err := readEnrichedFile(path)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, errors.New("回填文件为空，请先执行 transform")
	}

	if opts.DryRun {
		a.Logger.Warn().Str("file", path).Int("rows", len(rows)).Msg("回填 dry-run：不会写入数据库")
		return 0, nil
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return 0, err
	}
	if store == nil {
		return 0, errors.New("database.dsn 未配置，无法回填")
	}
	if closeStore != nil {
		defer closeStore()
	}

	stored, err := store.ReplaceAnalytics(ctx, rows)
	if err != nil {
		return 0, err
	}

	a.Logger.Info().Str("file", path).Int64("rows", stored).Msg("回填完成")
	return stored, nil
}
