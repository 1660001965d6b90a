// Package fasta contains code for reading and writing FASTA files of
// sequencing reads and consensus sequences. FASTA files consist of a number
// of named sequences that may be interrupted by newlines.  For example:
//
// >read/1
// ACGTAC
// GAGGAC
// GCG
// >read/2
// ACGT
//
// Note: Sequence names are defined to be the stretch of characters excluding
// spaces immediately after '>'.  Any text appear after a space are ignored.
// For example, '>m54006/1023/ccs A circular consensus read' becomes
// 'm54006/1023/ccs'.
package fasta

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

const (
	bufferInitSize = 1024 * 1024 * 300 // 300 MB
)

// Record is one named sequence.
type Record struct {
	Name string
	Seq  string
}

// Scanner streams the records of a FASTA file in order of appearance.
//
//   sc := fasta.NewScanner(r)
//   for sc.Scan() {
//     rec := sc.Record()
//     ...
//   }
//   if err := sc.Err(); err != nil { ... }
type Scanner struct {
	lines   *bufio.Scanner
	name    string
	seq     strings.Builder
	started bool
	done    bool
	rec     Record
	err     error
}

// NewScanner creates a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	lines := bufio.NewScanner(r)
	lines.Buffer(nil, bufferInitSize)
	return &Scanner{lines: lines}
}

// Scan reads the next record. It returns false at EOF or on error.
func (s *Scanner) Scan() bool {
	if s.err != nil || s.done {
		return false
	}
	for s.lines.Scan() {
		line := strings.TrimRight(s.lines.Text(), "\r")
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' { // Start a new sequence.
			name := seqName(line)
			if name == "" {
				s.err = errors.Errorf("malformed FASTA file: empty sequence name")
				return false
			}
			if s.started {
				s.emit()
				s.name = name
				return true
			}
			s.started = true
			s.name = name
			continue
		}
		if !s.started {
			s.err = errors.Errorf("malformed FASTA file: sequence data before the first header")
			return false
		}
		s.seq.WriteString(strings.TrimSpace(line))
	}
	if err := s.lines.Err(); err != nil {
		s.err = errors.Wrap(err, "couldn't read FASTA data")
		return false
	}
	s.done = true
	if s.started {
		s.emit()
		return true
	}
	return false
}

func (s *Scanner) emit() {
	s.rec = Record{Name: s.name, Seq: s.seq.String()}
	s.seq.Reset()
}

// Record returns the record read by the last successful call to Scan.
func (s *Scanner) Record() Record {
	return s.rec
}

// Err returns the first error encountered by the scanner.
func (s *Scanner) Err() error {
	return s.err
}

// ReadAll reads every record from r.
func ReadAll(r io.Reader) ([]Record, error) {
	var recs []Record
	sc := NewScanner(r)
	for sc.Scan() {
		recs = append(recs, sc.Record())
	}
	return recs, sc.Err()
}

func seqName(header string) string {
	fields := strings.Fields(header[1:])
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
