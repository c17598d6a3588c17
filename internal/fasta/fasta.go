// Package fasta reads and writes the FASTA files handled by fdog. Raw user
// input is scanned permissively, byte for byte, so the sanitizer can see and
// fix characters that are not legal in any sequence alphabet; curated library
// files go through biogo.
package fasta

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	bfasta "github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
)

var (
	// ErrInvalidSequence marks a sequence containing non-letter residues
	// under the strict cleaning policy.
	ErrInvalidSequence = errors.New("sequence contains non-letter characters")
	// ErrDuplicateID marks an input whose first-word sequence IDs collide.
	ErrDuplicateID = errors.New("duplicate sequence ID")
	// ErrEmptyID marks a record whose header carries no identifier.
	ErrEmptyID = errors.New("empty sequence ID")
)

// Record is one FASTA entry. ID is the first whitespace-delimited word of the
// header; Desc keeps the remainder.
type Record struct {
	ID   string
	Desc string
	Seq  []byte
}

// allow very long single-line sequences
const maxLine = 64 * 1024 * 1024

// Scan parses FASTA from r and calls fn once per record. Sequence bytes are
// passed through untouched: no alphabet is applied at this stage.
func Scan(r io.Reader, fn func(Record) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)

	var (
		cur  Record
		open bool
	)
	flush := func() error {
		if !open {
			return nil
		}
		rec := cur
		rec.Seq = append([]byte(nil), cur.Seq...)
		return fn(rec)
	}

	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			if err := flush(); err != nil {
				return err
			}
			id, desc := splitHeader(line[1:])
			cur = Record{ID: id, Desc: desc}
			open = true
			continue
		}
		if !open {
			return fmt.Errorf("fasta scan: sequence data before first header")
		}
		cur.Seq = append(cur.Seq, bytes.TrimSpace(line)...)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("fasta scan: %w", err)
	}
	return flush()
}

// ReadAll parses all records from r.
func ReadAll(r io.Reader) ([]Record, error) {
	var recs []Record
	err := Scan(r, func(rec Record) error {
		recs = append(recs, rec)
		return nil
	})
	return recs, err
}

// ReadFile parses all records from the file at path.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadAll(f)
}

func splitHeader(hdr []byte) (id, desc string) {
	hdr = bytes.TrimSpace(hdr)
	if i := bytes.IndexAny(hdr, " \t"); i >= 0 {
		return string(hdr[:i]), string(bytes.TrimSpace(hdr[i+1:]))
	}
	return string(hdr), ""
}

// Policy selects how non-letter residues are handled during cleaning.
type Policy int

const (
	// PolicyStrict rejects sequences containing non-letter residues.
	PolicyStrict Policy = iota
	// PolicyReplace substitutes non-letter residues with X.
	PolicyReplace
	// PolicyDelete removes non-letter residues.
	PolicyDelete
)

// CleanStats summarizes the modifications applied by Clean.
type CleanStats struct {
	Records        int
	PipesRewritten int
	StopsStripped  int
	ResiduesFixed  int
}

// Clean sanitizes records in place for library ingestion: IDs must be
// non-empty and unique, pipes in IDs become underscores, one trailing stop
// codon marker (*) is stripped, and non-letter residues are rejected,
// replaced by X, or deleted according to the policy.
func Clean(recs []Record, pol Policy) (CleanStats, error) {
	var stats CleanStats
	seen := make(map[string]struct{}, len(recs))

	for i := range recs {
		rec := &recs[i]
		if rec.ID == "" {
			return stats, fmt.Errorf("record %d: %w", i+1, ErrEmptyID)
		}
		if strings.ContainsRune(rec.ID, '|') {
			rec.ID = strings.ReplaceAll(rec.ID, "|", "_")
			stats.PipesRewritten++
		}
		if _, dup := seen[rec.ID]; dup {
			return stats, fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
		}
		seen[rec.ID] = struct{}{}

		if n := len(rec.Seq); n > 0 && rec.Seq[n-1] == '*' {
			rec.Seq = rec.Seq[:n-1]
			stats.StopsStripped++
		}

		fixed, n, err := cleanResidues(rec.ID, rec.Seq, pol)
		if err != nil {
			return stats, err
		}
		rec.Seq = fixed
		stats.ResiduesFixed += n
		stats.Records++
	}
	return stats, nil
}

func cleanResidues(id string, seq []byte, pol Policy) ([]byte, int, error) {
	dirty := 0
	for _, c := range seq {
		if !isLetter(c) {
			dirty++
		}
	}
	if dirty == 0 {
		return seq, 0, nil
	}
	switch pol {
	case PolicyReplace:
		out := make([]byte, len(seq))
		for i, c := range seq {
			if isLetter(c) {
				out[i] = c
			} else {
				out[i] = 'X'
			}
		}
		return out, dirty, nil
	case PolicyDelete:
		out := make([]byte, 0, len(seq)-dirty)
		for _, c := range seq {
			if isLetter(c) {
				out = append(out, c)
			}
		}
		return out, dirty, nil
	default:
		return nil, 0, fmt.Errorf("%w: %s (use the replace or delete policy)", ErrInvalidSequence, id)
	}
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// Write emits records as wrapped FASTA, 60 columns per line.
func Write(w io.Writer, recs []Record) error {
	fw := bfasta.NewWriter(w, 60)
	for _, rec := range recs {
		s := linear.NewSeq(rec.ID, alphabet.BytesToLetters(rec.Seq), alphabet.Protein)
		s.Desc = rec.Desc
		if _, err := fw.Write(s); err != nil {
			return fmt.Errorf("write %s: %w", rec.ID, err)
		}
	}
	return nil
}

// WriteFile writes records to path, creating or truncating it.
func WriteFile(path string, recs []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, recs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadCurated reads an already-sanitized library FASTA file through biogo.
func ReadCurated(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bfasta.NewReader(f, linear.NewSeq("", nil, alphabet.Protein))
	sc := seqio.NewScanner(r)
	var recs []Record
	for sc.Next() {
		s := sc.Seq().(*linear.Seq)
		recs = append(recs, Record{
			ID:   s.Name(),
			Desc: s.Desc,
			Seq:  []byte(s.Seq.String()),
		})
	}
	if err := sc.Error(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return recs, nil
}
