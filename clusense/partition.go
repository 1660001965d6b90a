package clusense

import (
	"sort"
	"strconv"

	"github.com/grailbio/base/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Partitioner recursively bisects reads by their allele vectors.
type Partitioner struct {
	// MinGroup is the smallest group that is split, and the smallest side a
	// split may produce.
	MinGroup int
	// Entropy is the column entropy a candidate split column must exceed.
	Entropy float64
}

// Group is one leaf of a bisection tree.
type Group struct {
	// Label is the decimal heap id of the tree node the group came from.
	Label   string
	Vectors []AlleleVector
	// Matrix is the numeric allele matrix of Vectors, one row per read. It is
	// nil for groups without reads or columns.
	Matrix *mat.Dense
}

// alleleCode maps an allele symbol to its numeric code: +1 for a base, -1
// for an absent base and 0 for a blank.
func alleleCode(a byte) float64 {
	switch a {
	case AlleleAbsent:
		return -1
	case AlleleBlank:
		return 0
	}
	return 1
}

func encode(v AlleleVector) []float64 {
	row := make([]float64, len(v.Alleles))
	for j, a := range v.Alleles {
		row[j] = alleleCode(a)
	}
	return row
}

func newMatrix(vectors []AlleleVector) *mat.Dense {
	if len(vectors) == 0 || len(vectors[0].Alleles) == 0 {
		return nil
	}
	m := mat.NewDense(len(vectors), len(vectors[0].Alleles), nil)
	for i, v := range vectors {
		m.SetRow(i, encode(v))
	}
	return m
}

// colEntropy returns the entropy of the +1/-1 split of column j, with one
// pseudo-count added to each side. Blanks are ignored.
func colEntropy(m *mat.Dense, j int) float64 {
	var pos, neg float64
	for _, x := range mat.Col(nil, j, m) {
		switch {
		case x > 0:
			pos++
		case x < 0:
			neg++
		}
	}
	return CalculateEntropy((pos + 1) / (pos + neg + 2))
}

// colSums returns the column sums of the rows of m selected by keep.
func colSums(m *mat.Dense, keep func(row []float64) bool) []float64 {
	r, c := m.Dims()
	sums := make([]float64, c)
	for i := 0; i < r; i++ {
		if row := m.RawRowView(i); keep(row) {
			floats.Add(sums, row)
		}
	}
	return sums
}

// partitionScore returns the inner product of the column sums of the rows
// that carry a base at column p and of the rows that lack it. Sides that
// disagree across many columns score strongly negative.
func partitionScore(m *mat.Dense, p int) float64 {
	plus := colSums(m, func(row []float64) bool { return row[p] > 0 })
	minus := colSums(m, func(row []float64) bool { return row[p] < 0 })
	return floats.Dot(plus, minus)
}

type candidate struct {
	col     int
	entropy float64
	score   float64
}

// bestSplit returns the candidate column with the lowest partition score,
// ties broken by higher entropy and then lower column.
func (p Partitioner) bestSplit(m *mat.Dense) (candidate, bool) {
	_, c := m.Dims()
	var cands []candidate
	for j := 0; j < c; j++ {
		if ce := colEntropy(m, j); ce > p.Entropy {
			cands = append(cands, candidate{col: j, entropy: ce, score: partitionScore(m, j)})
		}
	}
	if len(cands) == 0 {
		return candidate{}, false
	}
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.score != b.score {
			return a.score < b.score
		}
		if a.entropy != b.entropy {
			return a.entropy > b.entropy
		}
		return a.col < b.col
	})
	return cands[0], true
}

func centroid(vectors []AlleleVector, width int) []float64 {
	c := make([]float64, width)
	if len(vectors) == 0 {
		return c
	}
	for _, v := range vectors {
		floats.Add(c, encode(v))
	}
	floats.Scale(1/float64(len(vectors)), c)
	return c
}

// Regroup assigns every vector of all to the side whose centroid, computed
// from seed1 and seed2, it has the larger dot product with. Ties go to the
// second side.
func Regroup(seed1, seed2, all []AlleleVector) (group1, group2 []AlleleVector) {
	if len(all) == 0 {
		return nil, nil
	}
	width := len(all[0].Alleles)
	c1, c2 := centroid(seed1, width), centroid(seed2, width)
	for _, v := range all {
		row := encode(v)
		if floats.Dot(row, c1) > floats.Dot(row, c2) {
			group1 = append(group1, v)
		} else {
			group2 = append(group2, v)
		}
	}
	return group1, group2
}

// split tries to bisect vectors. ok is false when the node is a leaf.
func (p Partitioner) split(id int, vectors []AlleleVector, m *mat.Dense) (left, right []AlleleVector, ok bool) {
	if m == nil || len(vectors) < p.MinGroup {
		return nil, nil, false
	}
	best, found := p.bestSplit(m)
	if !found {
		log.Debug.Printf("partition %d: no candidate columns among %d reads", id, len(vectors))
		return nil, nil, false
	}
	if best.score >= 0 {
		log.Debug.Printf("partition %d: best column %d scores %v, not splitting", id, best.col, best.score)
		return nil, nil, false
	}
	var absent, present []AlleleVector
	for i, v := range vectors {
		switch x := m.At(i, best.col); {
		case x < 0:
			absent = append(absent, v)
		case x > 0:
			present = append(present, v)
		}
	}
	left, right = Regroup(absent, present, vectors)
	minSide := p.MinGroup
	if minSide < 1 {
		minSide = 1
	}
	if len(left) < minSide || len(right) < minSide {
		log.Debug.Printf("partition %d: split at column %d gives %d/%d reads, below %d", id, best.col, len(left), len(right), minSide)
		return nil, nil, false
	}
	log.Debug.Printf("partition %d: split at column %d (entropy %.3f, score %v) into %d/%d reads",
		id, best.col, best.entropy, best.score, len(left), len(right))
	return left, right, true
}

// Partition bisects vectors until every group is too small to split or has
// no column worth splitting on. The root of the tree gets heap id id and the
// children of node n are 2n+1 and 2n+2. Groups are returned in tree order,
// left before right; a single group means no split was found.
func (p Partitioner) Partition(vectors []AlleleVector, id int) []Group {
	type item struct {
		id      int
		vectors []AlleleVector
	}
	var groups []Group
	stack := []item{{id, vectors}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		m := newMatrix(it.vectors)
		left, right, ok := p.split(it.id, it.vectors, m)
		if !ok {
			groups = append(groups, Group{Label: strconv.Itoa(it.id), Vectors: it.vectors, Matrix: m})
			continue
		}
		stack = append(stack, item{2*it.id + 2, right}, item{2*it.id + 1, left})
	}
	return groups
}
