// Package index provides an in-memory HNSW vector index for semantic
// search over prompt descriptions.
package index

import (
	"fmt"
	"sync"

	"github.com/coder/hnsw"
)

// Result is one search hit.
type Result struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"` // cosine similarity mapped to [0, 1]
}

// Index stores and searches vectors at a dimension fixed at construction
// or inferred from the first inserted vector.
type Index struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[string]
	dim   int // 0 until fixed
}

// New creates an index. A dimension of 0 defers the width to the first
// inserted vector (dynamic-dimension deployments).
func New(dimension int) (*Index, error) {
	if dimension < 0 {
		return nil, fmt.Errorf("dimension must not be negative, got %d", dimension)
	}

	g := hnsw.NewGraph[string]()
	g.Distance = hnsw.CosineDistance

	return &Index{
		graph: g,
		dim:   dimension,
	}, nil
}

// Add inserts or replaces the vector for id. Once the dimension is fixed,
// mismatched widths are rejected.
func (ix *Index) Add(id string, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("vector for %q is empty", id)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.dim == 0 {
		ix.dim = len(vec)
	} else if len(vec) != ix.dim {
		return fmt.Errorf("vector for %q has dimension %d, index expects %d", id, len(vec), ix.dim)
	}

	// HNSW does not handle duplicate keys; replace explicitly.
	ix.graph.Delete(id)
	ix.graph.Add(hnsw.MakeNode(id, vec))
	return nil
}

// Search returns up to k nearest neighbours, closest first. An empty index
// yields an empty result.
func (ix *Index) Search(query []float32, k int) ([]Result, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.graph.Len() == 0 {
		return []Result{}, nil
	}
	if ix.dim != 0 && len(query) != ix.dim {
		return nil, fmt.Errorf("query has dimension %d, index expects %d", len(query), ix.dim)
	}
	if k <= 0 {
		k = 1
	}

	neighbors := ix.graph.Search(query, k)
	results := make([]Result, len(neighbors))
	for i, n := range neighbors {
		// CosineDistance is 0 for identical, 2 for opposite vectors;
		// 1 - distance/2 maps it to a [0, 1] similarity.
		dist := ix.graph.Distance(query, n.Value)
		results[i] = Result{
			ID:    n.Key,
			Score: 1.0 - float64(dist)/2.0,
		}
	}
	return results, nil
}

// Delete removes a vector by id.
func (ix *Index) Delete(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.graph.Delete(id)
}

// Len returns the number of indexed vectors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.graph.Len()
}

// Dim returns the fixed dimension, or 0 while still unfixed.
func (ix *Index) Dim() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dim
}
