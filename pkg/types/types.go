// Package types defines the core domain model shared across the fdog tool:
// taxon identifiers, per-taxon artifact sets, job specifications and results.
package types

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// TaxonID identifies one reference taxon in the library. The on-disk form is
// the composite key NAME@TAXID@VERSION (e.g. HUMAN@9606@230801). A TaxonID is
// immutable once the taxon has been registered.
type TaxonID struct {
	Name    string // species acronym, upper-case
	TaxID   int    // NCBI taxonomy ID
	Version string // proteome version tag
}

// String returns the composite key used for directory and file names.
func (t TaxonID) String() string {
	return t.Name + "@" + strconv.Itoa(t.TaxID) + "@" + t.Version
}

// IsZero reports whether t is the zero TaxonID.
func (t TaxonID) IsZero() bool {
	return t.Name == "" && t.TaxID == 0 && t.Version == ""
}

// ParseTaxonID parses the composite NAME@TAXID@VERSION form.
func ParseTaxonID(s string) (TaxonID, error) {
	parts := strings.Split(s, "@")
	if len(parts) != 3 {
		return TaxonID{}, fmt.Errorf("taxon %q: want NAME@TAXID@VERSION", s)
	}
	name, idStr, ver := parts[0], parts[1], parts[2]
	if name == "" || ver == "" {
		return TaxonID{}, fmt.Errorf("taxon %q: empty name or version", s)
	}
	id, err := strconv.Atoi(idStr)
	if err != nil || id <= 0 {
		return TaxonID{}, fmt.Errorf("taxon %q: taxonomy ID must be a positive integer", s)
	}
	return TaxonID{Name: name, TaxID: id, Version: ver}, nil
}

// FallbackName returns the acronym used when no species name is known,
// UNK followed by the taxonomy ID.
func FallbackName(taxID int) string {
	return "UNK" + strconv.Itoa(taxID)
}

// DefaultVersion derives the default proteome version tag from a build date,
// formatted as YYMMDD.
func DefaultVersion(now time.Time) string {
	return now.Format("060102")
}

// ArtifactCategory names one of the three parallel per-taxon artifact
// categories of the library.
type ArtifactCategory string

const (
	CategoryGenome  ArtifactCategory = "genome"
	CategoryIndex   ArtifactCategory = "index"
	CategoryWeights ArtifactCategory = "weights"
)

// Categories lists all artifact categories in their canonical order.
func Categories() []ArtifactCategory {
	return []ArtifactCategory{CategoryGenome, CategoryIndex, CategoryWeights}
}

// IndexVolumeExts are the BLAST database volume files that together form one
// search-index artifact. All three must be present and non-empty.
var IndexVolumeExts = []string{".phr", ".pin", ".psq"}

// ArtifactSet locates the artifact triple of one taxon. A taxon is complete
// iff the genome FASTA plus checked marker, all index volumes, and the weight
// file exist and are non-empty; an incomplete set must never be used by a job.
type ArtifactSet struct {
	Taxon      TaxonID
	GenomeDir  string // directory holding <taxon>.fa and its .checked marker
	IndexDir   string // directory holding the BLAST volume files
	WeightFile string // per-taxon annotation weights, JSON
}

// GenomeFasta returns the path of the curated genome FASTA file.
func (a ArtifactSet) GenomeFasta() string {
	return filepath.Join(a.GenomeDir, a.Taxon.String()+".fa")
}

// CheckedMarker returns the path of the genome integrity marker written after
// a successful sanitization pass.
func (a ArtifactSet) CheckedMarker() string {
	return a.GenomeFasta() + ".checked"
}

// IndexBase returns the path prefix shared by all index volume files.
func (a ArtifactSet) IndexBase() string {
	return filepath.Join(a.IndexDir, a.Taxon.String())
}

// IndexVolumes returns the paths of all BLAST volume files of the set.
func (a ArtifactSet) IndexVolumes() []string {
	base := a.IndexBase()
	vols := make([]string, 0, len(IndexVolumeExts))
	for _, ext := range IndexVolumeExts {
		vols = append(vols, base+ext)
	}
	return vols
}

// JobStatus is the terminal state of one ortholog-search job.
type JobStatus string

const (
	StatusOK      JobStatus = "ok"
	StatusSkipped JobStatus = "skipped"
	StatusFailed  JobStatus = "failed"
)

// JobFlags carries the per-job execution switches.
type JobFlags struct {
	Force          bool // re-run even when output for the job name exists
	Replace        bool // like Force, but the prior output is superseded atomically
	SkipAnnotation bool // omit the annotation phase entirely
	CPUs           int  // worker-thread budget handed to the external tools
}

// JobSpec describes one ortholog-search request. A spec is immutable after
// construction and consumed exactly once by the dispatcher.
type JobSpec struct {
	SeqFile  string  // input query FASTA
	JobName  string  // run name, also the output directory name
	RefTaxon TaxonID // seed taxon resolved against the library
	Flags    JobFlags
	Index    int // submission index within a batch, 0-based
}

// JobResult reports the outcome of one job. Results are owned by the caller
// and aggregated in submission order.
type JobResult struct {
	JobName  string
	Index    int
	Status   JobStatus
	Err      error    // nil unless Status == StatusFailed
	Outputs  []string // produced files, empty for skipped and failed jobs
	Duration time.Duration
}

// Summary counts batch outcomes per status.
type Summary struct {
	OK      int
	Skipped int
	Failed  int
}

// Total returns the number of jobs accounted for.
func (s Summary) Total() int { return s.OK + s.Skipped + s.Failed }

// Add folds one result into the summary.
func (s *Summary) Add(r JobResult) {
	switch r.Status {
	case StatusOK:
		s.OK++
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
	}
}

func (s Summary) String() string {
	return fmt.Sprintf("%d ok, %d skipped, %d failed", s.OK, s.Skipped, s.Failed)
}
