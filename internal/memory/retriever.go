package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	chromem "github.com/philippgille/chromem-go"

	"hermes/internal/llm"
	"hermes/internal/logging"
)

const (
	// DefaultTopK is how many entries a retrieval returns at most.
	DefaultTopK = 5
	// DefaultMinRelevance filters out barely-related results.
	DefaultMinRelevance = 0.3
)

// Retriever finds entries relevant to a query. With an embedder configured
// it uses a chromem vector collection; without one it scores by keyword
// overlap. Both paths share the same Retrieve contract.
type Retriever struct {
	store        *Store
	logger       logging.Logger
	collection   *chromem.Collection
	topK         int
	minRelevance float32
}

func NewRetriever(store *Store, embedder llm.Embedder, logger logging.Logger) (*Retriever, error) {
	r := &Retriever{
		store:        store,
		logger:       logging.OrNop(logger),
		topK:         DefaultTopK,
		minRelevance: DefaultMinRelevance,
	}
	if embedder != nil {
		db := chromem.NewDB()
		embeddingFunc := func(ctx context.Context, text string) ([]float32, error) {
			return embedder.Embed(ctx, text)
		}
		collection, err := db.GetOrCreateCollection("memories", nil, embeddingFunc)
		if err != nil {
			return nil, fmt.Errorf("create memory collection: %w", err)
		}
		r.collection = collection
		// Seed the collection from what the store already holds.
		for _, e := range store.allEntries() {
			if err := r.indexEntry(context.Background(), e); err != nil {
				r.logger.Warn("memory: index existing entry %s: %v", e.ID, err)
			}
		}
	}
	return r, nil
}

func (s *Store) allEntries() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}

// Remember stores a new entry and indexes it for retrieval.
func (r *Retriever) Remember(ctx context.Context, e *Entry) (*Entry, error) {
	e = r.store.AddEntry(e)
	if r.collection != nil {
		if err := r.indexEntry(ctx, e); err != nil {
			return e, fmt.Errorf("index entry %s: %w", e.ID, err)
		}
	}
	return e, nil
}

func (r *Retriever) indexEntry(ctx context.Context, e *Entry) error {
	return r.collection.AddDocument(ctx, chromem.Document{
		ID:        e.ID,
		Content:   e.Content,
		Embedding: e.Embedding,
		Metadata:  map[string]string{"user_id": e.UserID, "kind": string(e.Kind)},
	})
}

// Retrieve returns up to topK live entries relevant to the query, most
// relevant first. Returned entries get their access counters bumped.
func (r *Retriever) Retrieve(ctx context.Context, userID, query string) ([]*Entry, error) {
	var hits []*Entry
	var err error
	if r.collection != nil {
		hits, err = r.semanticRetrieve(ctx, userID, query)
		if err != nil {
			r.logger.Warn("memory: semantic retrieval failed, falling back to keywords: %v", err)
			hits = r.keywordRetrieve(userID, query)
		}
	} else {
		hits = r.keywordRetrieve(userID, query)
	}
	for _, e := range hits {
		r.store.Touch(e.ID)
	}
	return hits, nil
}

func (r *Retriever) semanticRetrieve(ctx context.Context, userID, query string) ([]*Entry, error) {
	n := r.topK
	if count := r.collection.Count(); count < n {
		n = count
	}
	if n == 0 {
		return nil, nil
	}
	results, err := r.collection.Query(ctx, query, n, map[string]string{"user_id": userID}, nil)
	if err != nil {
		return nil, err
	}
	live := make(map[string]*Entry)
	for _, e := range r.store.Entries(userID) {
		live[e.ID] = e
	}
	var out []*Entry
	for _, res := range results {
		if res.Similarity < r.minRelevance {
			continue
		}
		if e, ok := live[res.ID]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// keywordRetrieve scores entries by the fraction of query words present in
// the entry content.
func (r *Retriever) keywordRetrieve(userID, query string) []*Entry {
	words := tokenize(query)
	if len(words) == 0 {
		return nil
	}
	type scored struct {
		entry *Entry
		score float64
	}
	var candidates []scored
	for _, e := range r.store.Entries(userID) {
		score := overlapFraction(words, e.Content)
		if score < float64(r.minRelevance) {
			continue
		}
		candidates = append(candidates, scored{e, score})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > r.topK {
		candidates = candidates[:r.topK]
	}
	out := make([]*Entry, len(candidates))
	for i, c := range candidates {
		out[i] = c.entry
	}
	return out
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r < 0x80
	})
	var out []string
	for _, f := range fields {
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

func overlapFraction(queryWords []string, content string) float64 {
	lower := strings.ToLower(content)
	matched := 0
	for _, w := range queryWords {
		if strings.Contains(lower, w) {
			matched++
		}
	}
	return float64(matched) / float64(len(queryWords))
}
