// Package align computes pairwise alignments of sequencing reads against a
// reference (or consensus) sequence. Alignments are semi-global: the read is
// aligned end to end, while unaligned reference sequence before and after the
// read is free. The result is reported as a SAM-style CIGAR.
package align

import (
	"sync"

	"github.com/grailbio/hts/sam"
)

// Scoring holds the linear-gap alignment scores.
type Scoring struct {
	Match    int32
	Mismatch int32
	Gap      int32
}

// DefaultScoring prefers a substitution over an insertion/deletion pair, and
// tolerates the short indels typical of single-molecule reads.
var DefaultScoring = Scoring{Match: 2, Mismatch: -3, Gap: -2}

// Alignment describes where a read lands on the reference.
type Alignment struct {
	// RefStart and RefEnd delimit the aligned reference interval as a 0-based
	// half-open interval [RefStart, RefEnd).
	RefStart, RefEnd int
	Score            int
	// Reverse is set when the reverse complement of the read was aligned.
	Reverse bool
	Cigar   sam.Cigar
}

// operation is one of the three possible traversals in the DP matrix.
//
//   ___|___
//    1 | 3
//    2 | 4
//
// (1) diagonal (1 -> 4): read base aligned to reference base
// (2) right (2 -> 4): reference base skipped (deletion from the read)
// (3) down (3 -> 4): read base not present in the reference (insertion)
type operation uint8

const (
	diagonal operation = iota
	right
	down
)

// matrix holds the DP state for one alignment. score keeps only two rows;
// trace is the full row-major nRow*nCol traceback.
type matrix struct {
	nRow, nCol int
	prev, cur  []int32
	trace      []operation
}

var matrixPool = sync.Pool{New: func() interface{} { return &matrix{} }}

func (m *matrix) ensureSize(nRow, nCol int) {
	m.nRow, m.nCol = nRow, nCol
	if cap(m.prev) < nCol {
		m.prev = make([]int32, nCol)
		m.cur = make([]int32, nCol)
	}
	m.prev, m.cur = m.prev[:nCol], m.cur[:nCol]
	if cap(m.trace) < nRow*nCol {
		m.trace = make([]operation, nRow*nCol)
	}
	m.trace = m.trace[:nRow*nCol]
}

// Align aligns read against ref.
func Align(read, ref string, s Scoring) Alignment {
	if len(read) == 0 || len(ref) == 0 {
		return Alignment{}
	}
	m := matrixPool.Get().(*matrix)
	defer matrixPool.Put(m)

	nRow, nCol := len(read)+1, len(ref)+1
	m.ensureSize(nRow, nCol)

	// Leading reference is free, so row 0 is all zeros.
	for j := 0; j < nCol; j++ {
		m.prev[j] = 0
		m.trace[j] = right
	}
	for i := 1; i < nRow; i++ {
		rowOff := i * nCol
		m.cur[0] = int32(i) * s.Gap
		m.trace[rowOff] = down
		readBase := read[i-1]
		for j := 1; j < nCol; j++ {
			stepDiag := m.prev[j-1] + s.Mismatch
			if readBase == ref[j-1] && readBase != 'N' {
				stepDiag = m.prev[j-1] + s.Match
			}
			stepDown := m.prev[j] + s.Gap
			stepRight := m.cur[j-1] + s.Gap
			switch {
			case stepDiag >= stepDown && stepDiag >= stepRight:
				m.cur[j] = stepDiag
				m.trace[rowOff+j] = diagonal
			case stepDown >= stepRight:
				m.cur[j] = stepDown
				m.trace[rowOff+j] = down
			default:
				m.cur[j] = stepRight
				m.trace[rowOff+j] = right
			}
		}
		m.prev, m.cur = m.cur, m.prev
	}

	// Trailing reference is free: pick the best cell of the last row.
	bestJ := 0
	for j := 1; j < nCol; j++ {
		if m.prev[j] > m.prev[bestJ] {
			bestJ = j
		}
	}
	a := Alignment{RefEnd: bestJ, Score: int(m.prev[bestJ])}

	var ops []sam.CigarOpType
	i, j := nRow-1, bestJ
	for i > 0 {
		switch m.trace[i*nCol+j] {
		case diagonal:
			ops = append(ops, sam.CigarMatch)
			i--
			j--
		case down:
			ops = append(ops, sam.CigarInsertion)
			i--
		default:
			ops = append(ops, sam.CigarDeletion)
			j--
		}
	}
	a.RefStart = j
	a.Cigar = runLength(ops)
	return a
}

// runLength converts a reversed list of single-base operations into a CIGAR.
func runLength(rev []sam.CigarOpType) sam.Cigar {
	var cigar sam.Cigar
	for k := len(rev) - 1; k >= 0; {
		t := rev[k]
		n := 0
		for ; k >= 0 && rev[k] == t; k-- {
			n++
		}
		cigar = append(cigar, sam.NewCigarOp(t, n))
	}
	return cigar
}

// AlignBest aligns both read and its reverse complement against ref, and
// returns the higher-scoring alignment together with the read sequence in
// the orientation that was aligned.
func AlignBest(read, ref string, s Scoring) (Alignment, string) {
	fwd := Align(read, ref, s)
	rc := ReverseComplement(read)
	rev := Align(rc, ref, s)
	if rev.Score > fwd.Score {
		rev.Reverse = true
		return rev, rc
	}
	return fwd, read
}

// Edits returns the number of mismatching, inserted and deleted bases in the
// alignment of read (in aligned orientation) against ref. It is the value of
// the SAM NM tag.
func (a Alignment) Edits(read, ref string) int {
	edits := 0
	readPos, refPos := 0, a.RefStart
	for _, op := range a.Cigar {
		n := op.Len()
		switch op.Type() {
		case sam.CigarMatch:
			for k := 0; k < n; k++ {
				if read[readPos+k] != ref[refPos+k] || read[readPos+k] == 'N' {
					edits++
				}
			}
			readPos += n
			refPos += n
		case sam.CigarInsertion:
			edits += n
			readPos += n
		case sam.CigarDeletion:
			edits += n
			refPos += n
		}
	}
	return edits
}

var complement = func() (t [256]byte) {
	for i := range t {
		t[i] = 'N'
	}
	for _, p := range []string{"AT", "CG", "GC", "TA", "at", "cg", "gc", "ta"} {
		t[p[0]] = p[1] &^ 0x20
	}
	return
}()

// ReverseComplement maps 'A'/'a' to 'T', 'C'/'c' to 'G', 'G'/'g' to 'C',
// 'T'/'t' to 'A', everything else to 'N', and reverses the result.
func ReverseComplement(seq string) string {
	n := len(seq)
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[n-1-i] = complement[seq[i]]
	}
	return string(out)
}
