package fasta

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/bnbowman/PhasingTools/encoding/fastq"
	"github.com/grailbio/base/file"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// Writer writes FASTA records. Each sequence is written on a single line.
type Writer struct {
	w   *bufio.Writer
	err error
}

// NewWriter creates a Writer that writes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write appends one record. Errors are sticky.
func (w *Writer) Write(rec Record) error {
	if w.err != nil {
		return w.err
	}
	for _, s := range []string{">", rec.Name, "\n", rec.Seq, "\n"} {
		if _, err := w.w.WriteString(s); err != nil {
			w.err = err
			return err
		}
	}
	return nil
}

// Flush flushes buffered data to the underlying writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	w.err = w.w.Flush()
	return w.err
}

// ScanFile calls fn for every record in the FASTA file at path, in file order.
// Paths ending in ".gz" are decompressed on the fly. Paths ending in ".fastq"
// or ".fq" are read as FASTQ and their qualities dropped. Iteration stops at the
// first error returned by fn.
func ScanFile(ctx context.Context, path string, fn func(Record) error) (err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, in, &err)
	var r io.Reader = in.Reader(ctx)
	if strings.HasSuffix(path, ".gz") {
		gz, e := gzip.NewReader(r)
		if e != nil {
			return errors.Wrapf(e, "%s: couldn't open gzip stream", path)
		}
		defer func() {
			if e := gz.Close(); e != nil && err == nil {
				err = e
			}
		}()
		r = gz
	}
	if isFASTQ(path) {
		sc := fastq.NewScanner(r)
		for sc.Scan() {
			read := sc.Read()
			if err = fn(Record{Name: read.Name, Seq: read.Seq}); err != nil {
				return err
			}
		}
		if e := sc.Err(); e != nil {
			return errors.Wrap(e, path)
		}
		return nil
	}
	sc := NewScanner(r)
	for sc.Scan() {
		if err = fn(sc.Record()); err != nil {
			return err
		}
	}
	if e := sc.Err(); e != nil {
		return errors.Wrap(e, path)
	}
	return nil
}

// isFASTQ reports whether path names a FASTQ file, compressed or not.
func isFASTQ(path string) bool {
	path = strings.TrimSuffix(path, ".gz")
	return strings.HasSuffix(path, ".fastq") || strings.HasSuffix(path, ".fq")
}

// ReadFile reads every record in the FASTA file at path.
func ReadFile(ctx context.Context, path string) ([]Record, error) {
	var recs []Record
	err := ScanFile(ctx, path, func(r Record) error {
		recs = append(recs, r)
		return nil
	})
	return recs, err
}

// ReadFirst returns the first record of the FASTA file at path. It is an
// error for the file to hold no records.
func ReadFirst(ctx context.Context, path string) (Record, error) {
	var (
		first Record
		found bool
	)
	err := ScanFile(ctx, path, func(r Record) error {
		if !found {
			first, found = r, true
		}
		return nil
	})
	if err == nil && !found {
		err = errors.Errorf("%s: no FASTA records", path)
	}
	return first, err
}

// Names returns the record names in the FASTA file at path, in file order.
func Names(ctx context.Context, path string) ([]string, error) {
	var names []string
	err := ScanFile(ctx, path, func(r Record) error {
		names = append(names, r.Name)
		return nil
	})
	return names, err
}

// Count returns the number of records in the FASTA file at path.
func Count(ctx context.Context, path string) (int, error) {
	n := 0
	err := ScanFile(ctx, path, func(Record) error {
		n++
		return nil
	})
	return n, err
}

// WriteFile creates path and writes recs to it.
func WriteFile(ctx context.Context, path string, recs ...Record) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := NewWriter(out.Writer(ctx))
	for _, rec := range recs {
		if err = w.Write(rec); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Fetch copies the records of inPath whose names are in ids to outPath and
// returns the number of records written.
func Fetch(ctx context.Context, inPath, outPath string, ids map[string]bool) (n int, err error) {
	out, err := file.Create(ctx, outPath)
	if err != nil {
		return 0, err
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := NewWriter(out.Writer(ctx))
	err = ScanFile(ctx, inPath, func(r Record) error {
		if !ids[r.Name] {
			return nil
		}
		n++
		return w.Write(r)
	})
	if err != nil {
		return n, err
	}
	return n, w.Flush()
}
