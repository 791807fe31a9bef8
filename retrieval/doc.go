// Package retrieval turns raw vector-search results into model-ready context.
// Rank orders chunks deterministically (score, then recency, then id) and
// Assemble packs ranked chunks into a token budget with a greedy best-fit
// pass that skips oversized chunks instead of stopping at the first non-fit.
// Assembler wires an Embedder and a Retriever into a single query-to-context
// step for the engine; InMemoryIndex is a process-local cosine-similarity
// index for tests and examples.
package retrieval
