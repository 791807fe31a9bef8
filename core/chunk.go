package core

import (
	"context"
	"time"
)

// RetrievedChunk is a retrieval unit of a source document used for grounding
// and citation.
type RetrievedChunk struct {
	ID       string    `json:"id"`        // Chunk identifier (lexical tie-break key)
	SourceID string    `json:"source_id"` // Originating document / source
	Text     string    `json:"text"`      // Chunk text
	Score    float64   `json:"score"`     // Similarity score (higher is better)
	Recency  time.Time `json:"recency"`   // Recency marker (newer wins ties)
	Citation string    `json:"citation"`  // Human-readable citation reference
}

// RetrievalFilters narrows a retrieval lookup by source metadata.
type RetrievalFilters map[string]string

// Retriever is the consumed vector search capability. Implementations return
// chunks for a query vector; ranking guarantees are provided by the retrieval
// package on top of raw results.
type Retriever interface {
	Retrieve(ctx context.Context, queryVector []float64, k int, filters RetrievalFilters) ([]RetrievedChunk, error)
}

// Embedder turns text into a query vector. The embedding model itself is an
// external capability.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Citation references a chunk included in assembled context.
type Citation struct {
	SourceID string `json:"source_id"`
	ChunkID  string `json:"chunk_id"`
	Ref      string `json:"ref"`
}
