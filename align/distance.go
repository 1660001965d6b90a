package align

import (
	"fmt"
	"strconv"
	"strings"
)

// distMatrix is a row-major nRow*nCol table of unit edit costs.
type distMatrix struct {
	nRow, nCol int
	data       []int
}

func newDistMatrix(n, m int) distMatrix {
	return distMatrix{nRow: n, nCol: m, data: make([]int, n*m)}
}

// String returns a string representation of the matrix, for debugging.
func (m distMatrix) String() string {
	maxLength := 0
	for _, d := range m.data {
		if l := len(strconv.Itoa(d)); l > maxLength {
			maxLength = l
		}
	}
	lines := []string{"\n"}
	for i := 0; i < m.nRow; i++ {
		var parts []string
		for j := 0; j < m.nCol; j++ {
			parts = append(parts, fmt.Sprintf("%*d", maxLength, m.data[i*m.nCol+j]))
		}
		lines = append(lines, strings.Join(parts, " | "))
	}
	return strings.Join(lines, "\n")
}

// computeCell fills cell (i, j) from its three predecessors.
func (m distMatrix) computeCell(i, j int, s1, s2 string) {
	switch {
	case i == 0:
		m.data[j] = j
		return
	case j == 0:
		m.data[i*m.nCol] = i
		return
	case s1[i-1] == s2[j-1]:
		m.data[i*m.nCol+j] = m.data[(i-1)*m.nCol+(j-1)]
		return
	}
	v := m.data[(i-1)*m.nCol+j] + 1
	if d := m.data[(i-1)*m.nCol+(j-1)] + 1; d < v {
		v = d
	}
	if r := m.data[i*m.nCol+(j-1)] + 1; r < v {
		v = r
	}
	m.data[i*m.nCol+j] = v
}

// EditDistance computes the global Levenshtein distance between s1 and s2:
// the number of insertions, deletions and substitutions it takes to
// transform s1 into s2. Case is significant.
func EditDistance(s1, s2 string) int {
	m := newDistMatrix(len(s1)+1, len(s2)+1)
	for i := 0; i < m.nRow; i++ {
		for j := 0; j < m.nCol; j++ {
			m.computeCell(i, j, s1, s2)
		}
	}
	return m.data[len(m.data)-1]
}
