// Package fastq reads FASTQ files of long reads. Only the name, sequence and
// quality lines of a record are kept; the name is the first word of the
// header, without the leading '@'.
package fastq

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

var (
	// ErrShort is returned when a truncated FASTQ file is encountered.
	ErrShort = errors.New("short FASTQ file")
	// ErrInvalid is returned when an invalid FASTQ file is encountered.
	ErrInvalid = errors.New("invalid FASTQ file")
)

// maxLine bounds a single FASTQ line. Long reads can be hundreds of kilobases.
const maxLine = 64 << 20

// A Read is one FASTQ record.
type Read struct {
	Name, Seq, Qual string
}

// Scanner reads FASTQ records in file order. Scanners are not threadsafe.
//
// Scanner requires header lines to begin with "@", the separator line to
// begin with "+" and the quality string to be as long as the sequence.
type Scanner struct {
	b    *bufio.Scanner
	read Read
	err  error
	eof  bool
}

// NewScanner constructs a new Scanner that reads raw FASTQ data from r.
func NewScanner(r io.Reader) *Scanner {
	b := bufio.NewScanner(r)
	b.Buffer(nil, maxLine)
	return &Scanner{b: b}
}

// Scan reads the next record. Once Scan returns false, it never returns true
// again; Err tells whether scanning stopped at the end of the stream.
func (s *Scanner) Scan() bool {
	if s.err != nil || s.eof {
		return false
	}
	header, ok := s.line(false)
	for ok && header == "" {
		header, ok = s.line(false)
	}
	if !ok {
		return false
	}
	fields := strings.Fields(header[1:])
	if header[0] != '@' || len(fields) == 0 {
		s.err = ErrInvalid
		return false
	}
	seq, ok := s.line(true)
	if !ok {
		return false
	}
	sep, ok := s.line(true)
	if !ok {
		return false
	}
	if len(sep) == 0 || sep[0] != '+' {
		s.err = ErrInvalid
		return false
	}
	qual, ok := s.line(true)
	if !ok {
		return false
	}
	if len(qual) != len(seq) {
		s.err = ErrInvalid
		return false
	}
	s.read = Read{Name: fields[0], Seq: seq, Qual: qual}
	return true
}

// line returns the next line with any trailing '\r' removed. Inside a record
// the end of the stream is an ErrShort error.
func (s *Scanner) line(inRecord bool) (string, bool) {
	if s.b.Scan() {
		return strings.TrimRight(s.b.Text(), "\r"), true
	}
	switch s.err = s.b.Err(); {
	case s.err != nil:
	case inRecord:
		s.err = ErrShort
	default:
		s.eof = true
	}
	return "", false
}

// Read returns the record read by the last successful call to Scan.
func (s *Scanner) Read() Read {
	return s.read
}

// Err returns the scanning error, if any.
func (s *Scanner) Err() error {
	return s.err
}
