package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"

	"go.uber.org/zap"

	"ragqa/internal/domain"
	"ragqa/internal/logging"
)

// Store is a byte-oriented key/value cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Embedder caches vectors produced by an inner embedder. Cache failures are logged
// and never fail the embedding call.
type Embedder struct {
	inner  domain.Embedder
	store  Store
	logger *zap.Logger
}

func NewEmbedder(inner domain.Embedder, store Store, logger *zap.Logger) *Embedder {
	return &Embedder{inner: inner, store: store, logger: logging.OrNop(logger).Named("embedding-cache")}
}

func (e *Embedder) Model() string  { return e.inner.Model() }
func (e *Embedder) Dimension() int { return e.inner.Dimension() }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch serves cached vectors and sends only the misses to the inner embedder.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missText []string
	for i, t := range texts {
		key := e.key(t)
		data, ok, err := e.store.Get(ctx, key)
		if err != nil {
			e.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		if ok {
			if v, err := decode(data); err == nil {
				out[i] = v
				continue
			}
		}
		missIdx = append(missIdx, i)
		missText = append(missText, t)
	}
	if len(missText) == 0 {
		return out, nil
	}
	vecs, err := e.inner.EmbedBatch(ctx, missText)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		key := e.key(missText[j])
		if err := e.store.Set(ctx, key, encode(vecs[j])); err != nil {
			e.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return out, nil
}

func (e *Embedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "rag:emb:" + e.inner.Model() + ":" + hex.EncodeToString(sum[:])
}

func encode(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decode(b []byte) ([]float32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.New("corrupt cached vector")
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
