package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/hupe1980/promptmesh/core"
)

// indexEntry is the internal representation persisted by InMemoryIndex.
type indexEntry struct {
	chunk    core.RetrievedChunk
	vector   []float64
	metadata map[string]string
}

// InMemoryIndex is a naive process-local vector index implementing
// core.Retriever. It scores by cosine similarity over a linear scan and
// applies exact-match metadata filters. Suitable only for tests / demos;
// swap for a real vector store in production.
//
// Concurrency: protected by RWMutex.
type InMemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]indexEntry // chunkID -> entry
}

// NewInMemoryIndex creates an empty index.
func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{entries: make(map[string]indexEntry)}
}

// Upsert stores or replaces a chunk with its embedding vector and optional
// filter metadata. The chunk's Score field is ignored; scores are computed
// per query.
func (idx *InMemoryIndex) Upsert(chunk core.RetrievedChunk, vector []float64, metadata map[string]string) error {
	if chunk.ID == "" {
		return fmt.Errorf("chunk id must not be empty")
	}
	if len(vector) == 0 {
		return fmt.Errorf("vector must not be empty")
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	v := make([]float64, len(vector))
	copy(v, vector)

	md := make(map[string]string, len(metadata))
	for k, val := range metadata {
		md[k] = val
	}

	idx.entries[chunk.ID] = indexEntry{chunk: chunk, vector: v, metadata: md}

	return nil
}

// Delete removes a chunk by id.
func (idx *InMemoryIndex) Delete(chunkID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.entries, chunkID)
}

// Len returns the number of indexed chunks.
func (idx *InMemoryIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Retrieve implements core.Retriever. Results carry cosine-similarity scores
// and are ordered score descending, ties broken by recency (newer first)
// then chunk id, so top-k truncation never evicts the newer of two equally
// scored chunks.
func (idx *InMemoryIndex) Retrieve(ctx context.Context, queryVector []float64, k int, filters core.RetrievalFilters) ([]core.RetrievedChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	results := make([]core.RetrievedChunk, 0, len(idx.entries))
	for _, entry := range idx.entries {
		if !matchesFilters(entry.metadata, filters) {
			continue
		}
		chunk := entry.chunk
		chunk.Score = cosineSimilarity(queryVector, entry.vector)
		results = append(results, chunk)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].Recency.Equal(results[j].Recency) {
			return results[i].Recency.After(results[j].Recency)
		}
		return results[i].ID < results[j].ID
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}

	return results, nil
}

func matchesFilters(metadata map[string]string, filters core.RetrievalFilters) bool {
	for k, want := range filters {
		if metadata[k] != want {
			return false
		}
	}
	return true
}

// cosineSimilarity returns 0 for mismatched dimensions or zero vectors.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
