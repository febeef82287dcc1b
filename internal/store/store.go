// Package store is the namespaced persistent graph store. Every key is
// prefixed "<app>:<project>:" where project is a deterministic sanitisation
// of the absolute project root. Edge insertion and symbol removal run as Lua
// scripts so concurrent readers never observe torn edges or half-removed
// symbols; symbol and rank batches are written through transactional
// pipelines.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codeatlas/codeatlas/internal/model"
)

// Store wraps a Redis connection plus the active project namespace.
type Store struct {
	rdb    *redis.Client
	prefix string // application key prefix, e.g. "codeatlas"

	mu      sync.RWMutex
	project string // sanitised project name, "" until SetProjectContext
}

// New connects to the backend and pings it, failing fast when unreachable.
func New(ctx context.Context, url, keyPrefix string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis unreachable at %s: %w\n%s", url, err, installHint())
	}
	return &Store{rdb: rdb, prefix: keyPrefix}, nil
}

// NewWithClient wraps an existing client (used by tests with miniredis).
func NewWithClient(rdb *redis.Client, keyPrefix string) *Store {
	return &Store{rdb: rdb, prefix: keyPrefix}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// installHint names the platform package manager command for the backend.
func installHint() string {
	switch runtime.GOOS {
	case "darwin":
		return "hint: brew install redis && brew services start redis"
	case "linux":
		return "hint: apt-get install redis-server (or docker run -p 6379:6379 redis)"
	default:
		return "hint: install and start a Redis server, then retry"
	}
}

// SanitizeProject derives the project namespace from an absolute root path:
// non-alphanumerics become underscores.
func SanitizeProject(root string) string {
	var b strings.Builder
	for _, r := range root {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// SetProjectContext switches the active namespace. The write lock serialises
// the switch against in-flight reads and writes, so a cross-request switch
// never interleaves with another caller's key construction.
func (s *Store) SetProjectContext(root string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.project = SanitizeProject(root)
	slog.Debug("store.context", "project", s.project)
}

// Project returns the active sanitised project name.
func (s *Store) Project() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.project
}

// key builds "<prefix>:<project>:<suffix>".
func (s *Store) key(suffix string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefix + ":" + s.project + ":" + suffix
}

// nsPrefix returns "<prefix>:<project>:" for scripts that build keys inline.
func (s *Store) nsPrefix() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefix + ":" + s.project + ":"
}

// AcquireLock takes the named advisory lock via set-if-absent with a TTL.
// Returns false when another writer holds it.
func (s *Store) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, s.key("lock:"+name), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return ok, nil
}

// ReleaseLock drops the named lock. Safe to call when not held.
func (s *Store) ReleaseLock(ctx context.Context, name string) error {
	return s.rdb.Del(ctx, s.key("lock:"+name)).Err()
}

// SetProjectMetadata overwrites root, indexed_at and stats.
func (s *Store) SetProjectMetadata(ctx context.Context, meta *model.ProjectMetadata) error {
	stats, err := json.Marshal(meta.Stats)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.key("root"), meta.Root, 0)
	pipe.Set(ctx, s.key("indexed_at"), meta.IndexedAt.UTC().Format(time.RFC3339), 0)
	pipe.Set(ctx, s.key("stats"), stats, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set project metadata: %w", err)
	}
	return nil
}

// GetProjectMetadata returns nil when the project has never been indexed.
func (s *Store) GetProjectMetadata(ctx context.Context) (*model.ProjectMetadata, error) {
	root, err := s.rdb.Get(ctx, s.key("root")).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	meta := &model.ProjectMetadata{Root: root}
	if at, err := s.rdb.Get(ctx, s.key("indexed_at")).Result(); err == nil {
		meta.IndexedAt, _ = time.Parse(time.RFC3339, at)
	}
	if raw, err := s.rdb.Get(ctx, s.key("stats")).Result(); err == nil {
		_ = json.Unmarshal([]byte(raw), &meta.Stats)
	}
	return meta, nil
}

// SetFileRecord updates the tracking record after a successful parse.
func (s *Store) SetFileRecord(ctx context.Context, path string, rec model.FileRecord) error {
	return s.rdb.HSet(ctx, s.key("file:"+path),
		"mtime", rec.MTime,
		"hash", rec.Hash,
	).Err()
}

// GetFileRecord returns the tracking record, or nil when untracked.
func (s *Store) GetFileRecord(ctx context.Context, path string) (*model.FileRecord, error) {
	vals, err := s.rdb.HGetAll(ctx, s.key("file:"+path)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	rec := &model.FileRecord{Hash: vals["hash"]}
	fmt.Sscanf(vals["mtime"], "%d", &rec.MTime)
	return rec, nil
}

// RemoveFileRecord drops the tracking record on deletion.
func (s *Store) RemoveFileRecord(ctx context.Context, path string) error {
	return s.rdb.Del(ctx, s.key("file:"+path)).Err()
}

// TrackedFiles returns every tracking record for the active project.
func (s *Store) TrackedFiles(ctx context.Context) (map[string]model.FileRecord, error) {
	prefix := s.nsPrefix() + "file:"
	tracked := make(map[string]model.FileRecord)
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, prefix+"*", 512).Result()
		if err != nil {
			return nil, fmt.Errorf("scan tracked files: %w", err)
		}
		for _, k := range keys {
			path := strings.TrimPrefix(k, prefix)
			vals, err := s.rdb.HGetAll(ctx, k).Result()
			if err != nil || len(vals) == 0 {
				continue
			}
			rec := model.FileRecord{Hash: vals["hash"]}
			fmt.Sscanf(vals["mtime"], "%d", &rec.MTime)
			tracked[path] = rec
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return tracked, nil
}
