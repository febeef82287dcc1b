package indexer

import (
	"context"
	"log/slog"
	"os"

	"github.com/codeatlas/codeatlas/internal/extract"
	"github.com/codeatlas/codeatlas/internal/model"
	"github.com/codeatlas/codeatlas/internal/scanner"
)

// ReindexFile re-parses a single file after a watcher event. The stored hash
// short-circuits no-op writes (editors often touch without changing).
func (ix *Indexer) ReindexFile(ctx context.Context, path string) error {
	hash, err := scanner.HashFile(path)
	if err != nil {
		// Deleted between event and processing: treat as removal.
		if os.IsNotExist(err) {
			return ix.RemoveFile(ctx, path)
		}
		return err
	}
	prev, err := ix.Store.GetFileRecord(ctx, path)
	if err != nil {
		return err
	}
	if prev != nil && prev.Hash == hash {
		slog.Debug("indexer.file.unchanged", "file", path)
		return nil
	}

	ex := extract.New()
	out, err := ex.ExtractBatch(ctx, []string{path})
	if err != nil {
		return err
	}
	if err := ix.Store.RemoveFileSymbols(ctx, path); err != nil {
		return err
	}
	if err := ix.Store.AddSymbols(ctx, out.Symbols); err != nil {
		return err
	}
	if err := ix.persistEdges(ctx, out); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	rec := model.FileRecord{MTime: info.ModTime().UnixNano(), Hash: hash}
	if err := ix.Store.SetFileRecord(ctx, path, rec); err != nil {
		return err
	}
	slog.Info("indexer.file.reindexed", "file", path, "symbols", len(out.Symbols))
	return nil
}

// HandleChange and HandleDelete satisfy the watcher's handler contract.
func (ix *Indexer) HandleChange(ctx context.Context, path string) error {
	return ix.ReindexFile(ctx, path)
}

func (ix *Indexer) HandleDelete(ctx context.Context, path string) error {
	return ix.RemoveFile(ctx, path)
}

// RemoveFile drops a deleted file's symbols and tracking record.
func (ix *Indexer) RemoveFile(ctx context.Context, path string) error {
	if err := ix.Store.RemoveFileSymbols(ctx, path); err != nil {
		return err
	}
	if err := ix.Store.RemoveFileRecord(ctx, path); err != nil {
		return err
	}
	slog.Info("indexer.file.removed", "file", path)
	return nil
}
