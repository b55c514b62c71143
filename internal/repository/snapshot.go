package repository

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	"go.uber.org/zap"
)

// loadSnapshot reads a user-keyed JSON snapshot. A missing or corrupt file
// yields an empty mapping so the relay can always start.
func loadSnapshot[V any](path, label string, logger *zap.Logger) map[int64]V {
	data := make(map[int64]V)
	if path == "" {
		return data
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("no existing snapshot, starting empty", zap.String("snapshot", label), zap.String("path", path))
		} else {
			logger.Warn("unable to read snapshot, starting empty", zap.String("snapshot", label), zap.Error(err))
		}
		return data
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		logger.Warn("corrupt snapshot, starting empty", zap.String("snapshot", label), zap.Error(err))
		return make(map[int64]V)
	}

	logger.Info("loaded snapshot", zap.String("snapshot", label), zap.Int("users", len(data)))
	return data
}

// saveSnapshot replaces the snapshot file atomically so a crash never leaves
// a half-written mapping behind.
func saveSnapshot(path string, v any) error {
	if path == "" {
		return nil
	}
	raw, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
