// Package similarity provides vector similarity and greedy clustering utilities.
package similarity

// DefaultThreshold is the cosine similarity an item must strictly exceed to
// join an existing cluster.
const DefaultThreshold = 0.75

// Assignment is the result of clustering a batch of vectors.
type Assignment struct {
	// RepresentativeOf maps each item index to the index of its cluster's representative.
	// Representatives map to themselves.
	RepresentativeOf []int
	// Representatives lists representative indices in registration order.
	Representatives []int
	// Comparisons is the number of cosine evaluations performed.
	Comparisons int
}

// Members returns the item indices assigned to the cluster represented by rep,
// in input order. The representative itself is first.
func (a Assignment) Members(rep int) []int {
	var members []int
	for i, r := range a.RepresentativeOf {
		if r == rep {
			members = append(members, i)
		}
	}
	return members
}

// Clusterer is a single-pass greedy clusterer.
//
// Representatives are kept in an arena ordered by registration. Each new vector
// is compared against every representative; it joins the most similar one when
// that similarity strictly exceeds the threshold, otherwise it becomes a new
// representative. Earlier registrations win ties. Assignments are final: an
// item is never re-evaluated against representatives registered after it.
type Clusterer struct {
	repIndex    []int
	repVectors  [][]float32
	threshold   float64
	next        int
	comparisons int
}

// NewClusterer creates an empty clusterer using the given threshold.
func NewClusterer(threshold float64) *Clusterer {
	return &Clusterer{threshold: threshold}
}

// Add assigns the next item (by input order) and returns the index of its
// representative and whether it joined an existing cluster.
func (c *Clusterer) Add(vec []float32) (rep int, joined bool) {
	idx := c.next
	c.next++

	best, score := c.nearest(vec)
	if best >= 0 && score > c.threshold {
		return c.repIndex[best], true
	}

	c.repIndex = append(c.repIndex, idx)
	c.repVectors = append(c.repVectors, vec)
	return idx, false
}

// nearest returns the arena slot with the highest similarity to vec and that
// similarity. It returns -1 when the arena is empty.
func (c *Clusterer) nearest(vec []float32) (int, float64) {
	best := -1
	bestScore := 0.0
	for slot, rv := range c.repVectors {
		score := CosineSimilarity(vec, rv)
		c.comparisons++
		if best < 0 || score > bestScore {
			best = slot
			bestScore = score
		}
	}
	return best, bestScore
}

// Len returns the number of items added so far.
func (c *Clusterer) Len() int {
	return c.next
}

// Representatives returns the representative indices in registration order.
func (c *Clusterer) Representatives() []int {
	out := make([]int, len(c.repIndex))
	copy(out, c.repIndex)
	return out
}

// Comparisons returns the number of similarity evaluations performed so far.
func (c *Clusterer) Comparisons() int {
	return c.comparisons
}

// Cluster runs the greedy clusterer over embeddings in input order.
func Cluster(embeddings [][]float32, threshold float64) Assignment {
	c := NewClusterer(threshold)
	repOf := make([]int, len(embeddings))
	for i, vec := range embeddings {
		repOf[i], _ = c.Add(vec)
	}
	return Assignment{
		RepresentativeOf: repOf,
		Representatives:  c.Representatives(),
		Comparisons:      c.Comparisons(),
	}
}
