package addtaxon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/trvinh/fDOG/internal/fasta"
	"github.com/trvinh/fDOG/internal/library"
	"github.com/trvinh/fDOG/pkg/types"
)

// ErrNothingToIngest indicates a bulk add where no input file matches the
// mapping.
var ErrNothingToIngest = errors.New("addtaxon: nothing to ingest")

// MappingEntry resolves one input file name to its taxon identity. Name and
// Version are optional; the single-add fallbacks apply when they are empty.
type MappingEntry struct {
	FileName string
	TaxID    int
	Name     string
	Version  string
}

// ParseMapping reads a tab-separated mapping file, one entry per line:
//
//	<fasta file name> <tab> <taxonomy id> [<tab> <name> [<tab> <version>]]
//
// Blank lines and lines starting with # are skipped. A file name listed
// twice keeps its last entry.
func ParseMapping(path string) (map[string]MappingEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("addtaxon: open mapping: %w", err)
	}
	defer f.Close()

	entries := make(map[string]MappingEntry)
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			return nil, fmt.Errorf("addtaxon: mapping line %d: want <fasta>\\t<taxid>[\\t<name>[\\t<version>]]", lineNo)
		}
		name := strings.TrimSpace(fields[0])
		if name == "" {
			return nil, fmt.Errorf("addtaxon: mapping line %d: empty file name", lineNo)
		}
		taxID, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil || taxID <= 0 {
			return nil, fmt.Errorf("addtaxon: mapping line %d: taxonomy ID %q must be a positive integer", lineNo, strings.TrimSpace(fields[1]))
		}

		e := MappingEntry{FileName: name, TaxID: taxID}
		if len(fields) > 2 {
			e.Name = strings.TrimSpace(fields[2])
		}
		if len(fields) > 3 {
			e.Version = strings.TrimSpace(fields[3])
		}
		entries[name] = e
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("addtaxon: read mapping: %w", err)
	}
	return entries, nil
}

// BatchRequest describes a bulk ingestion: every file that appears both in
// the input directory and in the mapping becomes one Add.
type BatchRequest struct {
	InputDir       string
	MappingFile    string
	Core           bool
	SkipAnnotation bool
	CPUs           int
	Policy         fasta.Policy
	Force          bool
}

// Outcome reports one file's result within a bulk ingestion.
type Outcome struct {
	FileName string
	Taxon    types.TaxonID
	Stats    fasta.CleanStats
	Err      error
}

// AddAll ingests every matched file in name order. Taxa already registered
// abort the whole batch with ErrDuplicateTaxon before any work starts,
// unless the request forces replacement. One file failing does not stop the
// others; per-file errors come back in the outcomes.
//
// Ingestions run sequentially. The annotation tool parallelizes internally,
// so fanning files out would oversubscribe the CPU budget.
func (ing *Ingestor) AddAll(ctx context.Context, req BatchRequest) ([]Outcome, error) {
	mapping, err := ParseMapping(req.MappingFile)
	if err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(req.InputDir)
	if err != nil {
		return nil, fmt.Errorf("addtaxon: read input dir: %w", err)
	}

	now := time.Now()
	type job struct {
		file  string
		entry MappingEntry
		id    types.TaxonID
	}
	var (
		jobs []job
		dups []string
	)
	for _, e := range dirEntries {
		if e.IsDir() {
			continue
		}
		entry, ok := mapping[e.Name()]
		if !ok {
			continue
		}
		id, err := Request{TaxID: entry.TaxID, Name: entry.Name, Version: entry.Version}.TaxonID(now)
		if err != nil {
			return nil, fmt.Errorf("addtaxon: mapping entry %s: %w", e.Name(), err)
		}
		if ing.store.Has(id) {
			dups = append(dups, e.Name()+" -> "+id.String())
		}
		jobs = append(jobs, job{file: e.Name(), entry: entry, id: id})
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: no file in %s matches the mapping", ErrNothingToIngest, req.InputDir)
	}
	if len(dups) > 0 {
		if !req.Force {
			return nil, fmt.Errorf("addtaxon: already registered (%s): %w",
				strings.Join(dups, ", "), library.ErrDuplicateTaxon)
		}
		log.Warn("Replacing registered taxa", "count", len(dups))
	}

	log.Info("Bulk ingestion starting", "files", len(jobs), "inputDir", req.InputDir)

	outcomes := make([]Outcome, 0, len(jobs))
	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		id, stats, err := ing.Add(ctx, Request{
			FastaFile:      filepath.Join(req.InputDir, j.file),
			TaxID:          j.entry.TaxID,
			Name:           j.entry.Name,
			Version:        j.entry.Version,
			Core:           req.Core,
			SkipAnnotation: req.SkipAnnotation,
			CPUs:           req.CPUs,
			Policy:         req.Policy,
			Force:          req.Force,
		})
		if err != nil {
			log.Error("Taxon ingestion failed", "file", j.file, "error", err)
		}
		outcomes = append(outcomes, Outcome{FileName: j.file, Taxon: id, Stats: stats, Err: err})
	}
	return outcomes, nil
}
