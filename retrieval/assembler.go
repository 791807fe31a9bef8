package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/promptmesh/core"
	"github.com/hupe1980/promptmesh/internal/util"
	"github.com/hupe1980/promptmesh/logging"
)

// Assembled is the packed retrieval context for one query.
type Assembled struct {
	Text          string                `json:"text"`           // Concatenated chunk text
	Citations     []core.Citation       `json:"citations"`      // In inclusion order
	Chunks        []core.RetrievedChunk `json:"chunks"`         // Included chunks, ranked order
	TokenEstimate int                   `json:"token_estimate"` // Estimated size of Text
}

// Empty reports whether no chunk fit the budget.
func (a *Assembled) Empty() bool { return a == nil || len(a.Chunks) == 0 }

// Rank orders chunks by score descending, ties by recency (newer first), then
// chunk id lexical ascending. The input slice is not modified.
func Rank(chunks []core.RetrievedChunk) []core.RetrievedChunk {
	ranked := make([]core.RetrievedChunk, len(chunks))
	copy(ranked, chunks)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if !ranked[i].Recency.Equal(ranked[j].Recency) {
			return ranked[i].Recency.After(ranked[j].Recency)
		}
		return ranked[i].ID < ranked[j].ID
	})

	return ranked
}

// Assemble ranks chunks and packs them greedily into tokenBudget. A chunk
// that does not fit is skipped and packing continues with the next ranked
// chunk, so a small chunk can still ride behind an oversized one. The result
// is deterministic for a given input set.
func Assemble(chunks []core.RetrievedChunk, tokenBudget int) *Assembled {
	ranked := Rank(chunks)

	var (
		included []core.RetrievedChunk
		used     int
	)
	for _, chunk := range ranked {
		cost := util.EstimateTokens(chunk.Text)
		if cost == 0 || used+cost > tokenBudget {
			continue
		}
		included = append(included, chunk)
		used += cost
	}

	var b strings.Builder
	citations := make([]core.Citation, 0, len(included))
	for i, chunk := range included {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(chunk.Text)

		ref := chunk.Citation
		if ref == "" {
			ref = fmt.Sprintf("%s#%s", chunk.SourceID, chunk.ID)
		}
		citations = append(citations, core.Citation{SourceID: chunk.SourceID, ChunkID: chunk.ID, Ref: ref})
	}

	return &Assembled{
		Text:          b.String(),
		Citations:     citations,
		Chunks:        included,
		TokenEstimate: used,
	}
}

// AssemblerOptions configures an Assembler.
type AssemblerOptions struct {
	// TopK is the number of chunks requested from the retriever.
	TopK int
	// TokenBudget caps the assembled context size.
	TokenBudget int
	// Filters narrows every retrieval issued by this assembler.
	Filters core.RetrievalFilters
	// Logger for retrieval diagnostics.
	Logger logging.Logger
}

// Assembler embeds a query, retrieves candidate chunks and packs them into
// the configured token budget.
type Assembler struct {
	embedder  core.Embedder
	retriever core.Retriever
	opts      AssemblerOptions
}

// NewAssembler creates an Assembler over the given capabilities.
func NewAssembler(embedder core.Embedder, retriever core.Retriever, optFns ...func(o *AssemblerOptions)) *Assembler {
	opts := AssemblerOptions{
		TopK:        8,
		TokenBudget: 2048,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Assembler{embedder: embedder, retriever: retriever, opts: opts}
}

// Assemble runs the full query-to-context step: embed, retrieve, rank, pack.
func (a *Assembler) Assemble(ctx context.Context, query string) (*Assembled, error) {
	vector, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	chunks, err := a.retriever.Retrieve(ctx, vector, a.opts.TopK, a.opts.Filters)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve chunks: %w", err)
	}

	assembled := Assemble(chunks, a.opts.TokenBudget)

	a.opts.Logger.Debug("retrieval.assembled",
		"candidates", len(chunks),
		"included", len(assembled.Chunks),
		"tokens", assembled.TokenEstimate,
		"budget", a.opts.TokenBudget,
	)

	return assembled, nil
}
