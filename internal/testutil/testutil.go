// Package testutil provides deterministic fakes shared by tests.
package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/hupe1980/promptmesh/core"
)

// HashEmbedder is a deterministic bag-of-words embedder: tokens hash into a
// fixed number of buckets and the vector is L2-normalized. Texts sharing
// vocabulary get high cosine similarity, which is enough to drive the
// in-memory index in tests without a real embedding model.
type HashEmbedder struct {
	Dim int
}

// Embed implements core.Embedder.
func (e HashEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	dim := e.Dim
	if dim <= 0 {
		dim = 64
	}

	vec := make([]float64, dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,!?;:\"'()")
		if tok == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[int(h.Sum32())%dim]++
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}

	return vec, nil
}

// Transcript builds an alternating user/assistant message history from the
// given texts, starting with a user message.
func Transcript(texts ...string) []core.Message {
	msgs := make([]core.Message, 0, len(texts))
	for i, text := range texts {
		if i%2 == 0 {
			msgs = append(msgs, core.NewUserMessage(text))
		} else {
			msgs = append(msgs, core.NewAssistantMessage(text))
		}
	}
	return msgs
}
