package vectorstore

import (
	"context"
	"slices"

	"ragqa/internal/domain"
)

// Storage persists embedded chunks and supports similarity search.
//
// A build is Init, any number of Upsert calls, then Commit or Abort. Implementations that can
// stage writes keep serving the previously committed contents until Commit.
type Storage interface {
	// Exists reports whether a committed, non-empty collection is present.
	Exists(ctx context.Context) (bool, error)
	// Sources returns the source list recorded by the last committed build.
	Sources(ctx context.Context) ([]string, error)
	Init(ctx context.Context, dimension int, sources []string) error
	// Upsert stores chunks; every chunk must carry an embedding of the Init dimension.
	Upsert(ctx context.Context, chunks []domain.Chunk) error
	Commit(ctx context.Context) error
	// Abort drops an uncommitted build.
	Abort(ctx context.Context) error
	// Search returns at most k results ordered by non-increasing cosine similarity.
	// An empty collection yields an empty result.
	Search(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// BuildLocker is implemented by stores shared between processes. LockBuild takes the
// exclusive build lock and reloads the committed contents, so Exists reflects builds
// finished elsewhere. Commit and Abort release the lock; UnlockBuild releases it
// without a build and is a no-op when the lock is not held.
type BuildLocker interface {
	LockBuild(ctx context.Context) error
	UnlockBuild() error
}

// SameSources reports whether two source lists contain the same entries, ignoring order.
func SameSources(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := slices.Clone(a)
	y := slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}
