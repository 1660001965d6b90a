package clusense

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strconv"

	"github.com/bnbowman/PhasingTools/aligngraph"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
)

// SummaryFile is the name of the per-run group table.
const SummaryFile = "summary.txt"

// GroupSummary describes one emitted group.
type GroupSummary struct {
	Name  string
	Count int
	// Status and Depth are not persisted in SummaryFile.
	Status Status
	Depth  int
}

// Summary lists the groups of a run in output order.
type Summary struct {
	Groups []GroupSummary
	Total  int
}

// writeScore writes one line per consensus position:
//
//   position base match mismatch deletion total ratio
//
// where ratio = match/(total+1). Positions without coverage are not written.
func writeScore(ctx context.Context, path, seq string, cov []aligngraph.Coverage) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := tsv.NewWriter(out.Writer(ctx))
	for i, c := range cov {
		if i >= len(seq) {
			break
		}
		w.WriteInt64(int64(i))
		w.WriteByte(seq[i])
		w.WriteInt64(int64(c.Match))
		w.WriteInt64(int64(c.Mismatch))
		w.WriteInt64(int64(c.Deletion))
		w.WriteInt64(int64(c.Total))
		w.WriteString(strconv.FormatFloat(float64(c.Match)/float64(c.Total+1), 'f', 4, 64))
		if err = w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

func writeSummary(ctx context.Context, path string, s Summary) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := tsv.NewWriter(out.Writer(ctx))
	for _, g := range s.Groups {
		w.WriteString(g.Name)
		w.WriteInt64(int64(g.Count))
		if err = w.EndLine(); err != nil {
			return err
		}
	}
	w.WriteString("total")
	w.WriteInt64(int64(s.Total))
	if err = w.EndLine(); err != nil {
		return err
	}
	return w.Flush()
}

// ReadSummary reads the group table that a run wrote to dir.
func ReadSummary(ctx context.Context, dir string) (s Summary, err error) {
	path := filepath.Join(dir, SummaryFile)
	in, err := file.Open(ctx, path)
	if err != nil {
		return s, err
	}
	defer file.CloseAndReport(ctx, in, &err)
	r := tsv.NewReader(in.Reader(ctx))
	var row struct {
		Name  string
		Count int64
	}
	sawTotal := false
	for {
		if err = r.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return s, errors.E(errors.Invalid, err, "read", path)
		}
		if row.Name == "total" {
			s.Total, sawTotal = int(row.Count), true
			continue
		}
		s.Groups = append(s.Groups, GroupSummary{Name: row.Name, Count: int(row.Count)})
	}
	if !sawTotal {
		return s, errors.E(errors.Invalid, path, "has no total line")
	}
	return s, nil
}

// writeBAM writes the read placements of a graph built against ref as BAM
// records on a single reference sequence named refName.
func writeBAM(ctx context.Context, path, refName, ref string, alns []aligngraph.ReadAlignment) (err error) {
	samRef, err := sam.NewReference(refName, "", "", len(ref), nil, nil)
	if err != nil {
		return err
	}
	header, err := sam.NewHeader(nil, []*sam.Reference{samRef})
	if err != nil {
		return err
	}
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	bw, err := bam.NewWriter(out.Writer(ctx), header, 1)
	if err != nil {
		return err
	}
	for _, ra := range alns {
		a := ra.Alignment
		r := &sam.Record{
			Name:    ra.Name,
			Ref:     samRef,
			Pos:     a.RefStart,
			MapQ:    255,
			Cigar:   a.Cigar,
			MatePos: -1,
			Seq:     sam.NewSeq([]byte(ra.Seq)),
			Qual:    bytes.Repeat([]byte{0xff}, len(ra.Seq)),
		}
		if a.Reverse {
			r.Flags |= sam.Reverse
		}
		nm, err := sam.NewAux(sam.NewTag("NM"), a.Edits(ra.Seq, ref))
		if err != nil {
			return err
		}
		r.AuxFields = append(r.AuxFields, nm)
		if err = bw.Write(r); err != nil {
			return err
		}
	}
	return bw.Close()
}
