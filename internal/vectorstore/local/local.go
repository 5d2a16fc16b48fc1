// Package local persists the in-memory index as a gob snapshot on disk.
package local

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"ragqa/internal/domain"
	"ragqa/internal/logging"
	"ragqa/internal/vectorstore/memory"
)

const snapshotVersion = 1

// Config locates a collection on disk.
type Config struct {
	Dir        string
	Collection string
	// LockTimeout bounds how long Init waits for another builder to finish.
	LockTimeout time.Duration
}

type snapshotFile struct {
	Version  int
	Snapshot *memory.Snapshot
}

// Storage serves searches from memory and writes <dir>/<collection>.gob on Commit.
// A build holds <dir>/<collection>.lock from Init until Commit, Abort or Close.
type Storage struct {
	mem         *memory.Storage
	path        string
	lock        *flock.Flock
	lockTimeout time.Duration
	logger      *zap.Logger
}

// Open loads the collection snapshot if one exists.
func Open(cfg Config, logger *zap.Logger) (*Storage, error) {
	if cfg.Dir == "" || cfg.Collection == "" {
		return nil, errors.New("local index: dir and collection are required")
	}
	logger = logging.OrNop(logger)
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 10 * time.Second
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("local index: %w", err)
	}
	s := &Storage{
		mem:         memory.NewStorage(),
		path:        filepath.Join(cfg.Dir, cfg.Collection+".gob"),
		lock:        flock.New(filepath.Join(cfg.Dir, cfg.Collection+".lock")),
		lockTimeout: cfg.LockTimeout,
		logger:      logger.Named("local_index"),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Storage) load() error {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("local index: %w", err)
	}
	defer f.Close()
	var file snapshotFile
	if err := gob.NewDecoder(f).Decode(&file); err != nil {
		return fmt.Errorf("local index: decode %s: %w", s.path, err)
	}
	if file.Version != snapshotVersion || file.Snapshot == nil {
		return fmt.Errorf("local index: unsupported snapshot version %d in %s", file.Version, s.path)
	}
	s.mem.Load(file.Snapshot)
	s.logger.Debug("snapshot loaded", zap.String("path", s.path), zap.Int("chunks", len(file.Snapshot.Chunks)))
	return nil
}

func (s *Storage) Exists(ctx context.Context) (bool, error) { return s.mem.Exists(ctx) }

func (s *Storage) Sources(ctx context.Context) ([]string, error) { return s.mem.Sources(ctx) }

func (s *Storage) Count(ctx context.Context) (int, error) { return s.mem.Count(ctx) }

func (s *Storage) Search(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error) {
	return s.mem.Search(ctx, vector, k)
}

// LockBuild takes the collection lock and reloads the snapshot from disk.
func (s *Storage) LockBuild(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	if err := s.load(); err != nil {
		s.unlock()
		return err
	}
	return nil
}

func (s *Storage) UnlockBuild() error {
	return s.lock.Unlock()
}

// Init takes the collection lock unless LockBuild already holds it and starts a staged build.
func (s *Storage) Init(ctx context.Context, dimension int, sources []string) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	if err := s.mem.Init(ctx, dimension, sources); err != nil {
		_ = s.lock.Unlock()
		return err
	}
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	return s.mem.Upsert(ctx, chunks)
}

// Commit publishes the staged build in memory and on disk, then releases the lock.
// If the snapshot cannot be written the previous contents stay in place.
func (s *Storage) Commit(ctx context.Context) error {
	defer s.unlock()
	prev := s.mem.Snapshot()
	if err := s.mem.Commit(ctx); err != nil {
		return err
	}
	if err := s.persist(s.mem.Snapshot()); err != nil {
		s.mem.Load(prev)
		return err
	}
	s.logger.Info("snapshot committed", zap.String("path", s.path))
	return nil
}

func (s *Storage) Abort(ctx context.Context) error {
	defer s.unlock()
	return s.mem.Abort(ctx)
}

func (s *Storage) Close() error {
	if s.lock.Locked() {
		_ = s.mem.Abort(context.Background())
	}
	return s.lock.Close()
}

func (s *Storage) acquire(ctx context.Context) error {
	if s.lock.Locked() {
		return nil
	}
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	ok, err := s.lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil || !ok {
		return fmt.Errorf("local index: %s is being built by another process: %w", s.path, errors.Join(err, lockCtx.Err()))
	}
	return nil
}

func (s *Storage) unlock() {
	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn("release lock", zap.Error(err))
	}
}

// persist writes to a temp file in the same directory and renames it over the
// snapshot so readers never observe a partial file.
func (s *Storage) persist(snap *memory.Snapshot) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("local index: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := gob.NewEncoder(tmp).Encode(snapshotFile{Version: snapshotVersion, Snapshot: snap}); err != nil {
		tmp.Close()
		return fmt.Errorf("local index: encode: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("local index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("local index: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("local index: %w", err)
	}
	return nil
}
