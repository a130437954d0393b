package gallery

import (
	"cmp"
	"slices"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/face-attendance/internal/face"
	"github.com/kozaktomas/face-attendance/internal/matcher"
)

// HNSW parameters sized for galleries of up to a few thousand faces.
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	HNSWEfSearch = 64
)

// Index wraps an HNSW graph over one immutable gallery snapshot.
// Node keys are gallery positions.
type Index struct {
	graph   *hnsw.Graph[int]
	records []face.Record
}

// NewIndex builds an index from records. The records must not be modified afterwards.
func NewIndex(records []face.Record) *Index {
	idx := &Index{records: records}
	if len(records) == 0 {
		return idx
	}

	g := hnsw.NewGraph[int]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance

	for i := range records {
		if face.IsZero(records[i].Embedding) {
			continue // no direction to compare against
		}
		g.Add(hnsw.MakeNode(i, records[i].Embedding))
	}
	if g.Len() == 0 {
		return idx
	}
	idx.graph = g
	return idx
}

// Len returns the number of indexed records.
func (x *Index) Len() int {
	return len(x.records)
}

// Search returns up to k approximate nearest records ordered by cosine distance,
// ties broken by gallery position. The probe length must match the records.
func (x *Index) Search(probe []float32, k int) []matcher.Candidate {
	if x.graph == nil || k <= 0 {
		return nil
	}

	neighbors := x.graph.Search(probe, k)
	out := make([]matcher.Candidate, 0, len(neighbors))
	for _, n := range neighbors {
		rec := x.records[n.Key]
		out = append(out, matcher.Candidate{
			Index:    n.Key,
			Name:     rec.Name,
			Distance: matcher.CosineDistance(probe, rec.Embedding),
		})
	}

	slices.SortFunc(out, func(a, b matcher.Candidate) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Index, b.Index)
	})
	return out
}
