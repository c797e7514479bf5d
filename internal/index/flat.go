// Package index holds the exact vector index, its on-disk codec and the
// artifact stores that persist an index together with its metadata.
package index

import (
	"errors"
	"fmt"
	"sort"
)

// Flat is an exact nearest-neighbour index over squared Euclidean distance.
// Vectors are addressed by insertion position.
type Flat struct {
	dim  int
	data []float32
}

// NewFlat returns an empty index for vectors of the given dimension.
func NewFlat(dim int) *Flat {
	return &Flat{dim: dim}
}

func (f *Flat) Dim() int { return f.dim }

// Len returns the number of stored vectors.
func (f *Flat) Len() int {
	if f.dim == 0 {
		return 0
	}
	return len(f.data) / f.dim
}

// Add appends vectors in order. Either all are added or none.
func (f *Flat) Add(vecs ...[]float32) error {
	for i, v := range vecs {
		if len(v) != f.dim {
			return fmt.Errorf("vector %d has dimension %d, index expects %d", i, len(v), f.dim)
		}
	}
	for _, v := range vecs {
		f.data = append(f.data, v...)
	}
	return nil
}

// Vector returns a copy of the vector at position i.
func (f *Flat) Vector(i int) []float32 {
	out := make([]float32, f.dim)
	copy(out, f.data[i*f.dim:(i+1)*f.dim])
	return out
}

// Search returns up to k positions ordered by ascending distance to q.
// Equal distances keep insertion order.
func (f *Flat) Search(q []float32, k int) ([]float32, []int, error) {
	if k <= 0 {
		return nil, nil, errors.New("k must be positive")
	}
	if len(q) != f.dim {
		return nil, nil, fmt.Errorf("query has dimension %d, index expects %d", len(q), f.dim)
	}

	n := f.Len()
	positions := make([]int, n)
	dists := make([]float32, n)
	for i := 0; i < n; i++ {
		positions[i] = i
		dists[i] = squaredL2(q, f.data[i*f.dim:(i+1)*f.dim])
	}
	sort.SliceStable(positions, func(a, b int) bool {
		return dists[positions[a]] < dists[positions[b]]
	})

	k = min(k, n)
	outDist := make([]float32, k)
	for i := 0; i < k; i++ {
		outDist[i] = dists[positions[i]]
	}
	return outDist, positions[:k], nil
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
