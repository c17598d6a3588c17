package library

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/trvinh/fDOG/pkg/types"
)

// TaxonState is the validation outcome for one taxon.
type TaxonState struct {
	Taxon   types.TaxonID            `json:"taxon"`
	Missing []types.ArtifactCategory `json:"missing,omitempty"` // categories with no artifact at all
	Faults  []string                 `json:"faults,omitempty"`  // integrity failures in present artifacts
}

// Complete reports whether the taxon passed every check.
func (ts TaxonState) Complete() bool {
	return len(ts.Missing) == 0 && len(ts.Faults) == 0
}

// Problems returns every finding as a printable line.
func (ts TaxonState) Problems() []string {
	out := make([]string, 0, len(ts.Missing)+len(ts.Faults))
	for _, cat := range ts.Missing {
		out = append(out, string(cat)+": missing")
	}
	out = append(out, ts.Faults...)
	return out
}

// Report classifies every registered taxon. A taxon appears in exactly one
// bucket: OK when the full triple is present and healthy, Corrupt when any
// present artifact fails integrity, Partial otherwise. All buckets are
// sorted by composite key for reproducible output.
type Report struct {
	OK      []types.TaxonID `json:"ok"`
	Partial []TaxonState    `json:"partial,omitempty"`
	Corrupt []TaxonState    `json:"corrupt,omitempty"`
}

// Clean reports whether no taxon is partial or corrupt.
func (r Report) Clean() bool {
	return len(r.Partial) == 0 && len(r.Corrupt) == 0
}

func (r Report) String() string {
	return fmt.Sprintf("%d ok, %d partial, %d corrupt", len(r.OK), len(r.Partial), len(r.Corrupt))
}

// Validator inspects a store without ever mutating it, except for the
// explicit RemoveExcess pruning entry point.
type Validator struct {
	store *Store
}

func NewValidator(s *Store) *Validator {
	return &Validator{store: s}
}

// Check validates every registered taxon. A broken taxon never aborts the
// sweep; it is reported and the remaining taxa are still checked.
func (v *Validator) Check() Report {
	var rep Report
	for _, id := range v.store.List() {
		st := v.checkTaxon(id)
		switch {
		case st.Complete():
			rep.OK = append(rep.OK, id)
		case len(st.Faults) > 0:
			rep.Corrupt = append(rep.Corrupt, st)
		default:
			rep.Partial = append(rep.Partial, st)
		}
	}

	sort.Slice(rep.OK, func(i, j int) bool { return rep.OK[i].String() < rep.OK[j].String() })
	sort.Slice(rep.Partial, func(i, j int) bool { return rep.Partial[i].Taxon.String() < rep.Partial[j].Taxon.String() })
	sort.Slice(rep.Corrupt, func(i, j int) bool { return rep.Corrupt[i].Taxon.String() < rep.Corrupt[j].Taxon.String() })
	return rep
}

// CheckComplete verifies one taxon end to end, for callers that need a
// usable reference taxon rather than a report. The error distinguishes an
// unknown taxon, an incomplete triple, and a corrupt artifact.
func (v *Validator) CheckComplete(id types.TaxonID) error {
	if !v.store.Has(id) {
		return fmt.Errorf("%w: %s", ErrTaxonNotFound, id)
	}
	st := v.checkTaxon(id)
	if len(st.Faults) > 0 {
		return fmt.Errorf("%w: %s (%s)", ErrArtifactCorrupt, id, strings.Join(st.Faults, "; "))
	}
	if len(st.Missing) > 0 {
		cats := make([]string, len(st.Missing))
		for i, c := range st.Missing {
			cats[i] = string(c)
		}
		return fmt.Errorf("%w: %s (missing %s)", ErrTaxonIncomplete, id, strings.Join(cats, ", "))
	}
	return nil
}

func (v *Validator) checkTaxon(id types.TaxonID) TaxonState {
	set, err := v.store.Get(id)
	if err != nil {
		return TaxonState{Taxon: id, Missing: types.Categories()}
	}
	st := TaxonState{Taxon: id}

	if !dirExists(set.GenomeDir) {
		st.Missing = append(st.Missing, types.CategoryGenome)
	} else {
		if !fileNonEmpty(set.GenomeFasta()) {
			st.Faults = append(st.Faults, fmt.Sprintf("genome: %s missing or empty", filepath.Base(set.GenomeFasta())))
		}
		if !pathExists(set.CheckedMarker()) {
			st.Faults = append(st.Faults, fmt.Sprintf("genome: %s missing", filepath.Base(set.CheckedMarker())))
		}
	}

	if !dirExists(set.IndexDir) {
		st.Missing = append(st.Missing, types.CategoryIndex)
	} else {
		for _, vol := range set.IndexVolumes() {
			if !fileNonEmpty(vol) {
				st.Faults = append(st.Faults, fmt.Sprintf("index: %s missing or empty", filepath.Base(vol)))
			}
		}
	}

	if !pathExists(set.WeightFile) {
		st.Missing = append(st.Missing, types.CategoryWeights)
	} else if !fileNonEmpty(set.WeightFile) {
		st.Faults = append(st.Faults, fmt.Sprintf("weights: %s empty", filepath.Base(set.WeightFile)))
	}

	return st
}

// PruneFailure records one taxon that RemoveExcess could not fully delete.
type PruneFailure struct {
	Taxon types.TaxonID
	Err   error
}

// PruneReport is the outcome of a RemoveExcess sweep.
type PruneReport struct {
	Kept    []types.TaxonID
	Removed []types.TaxonID
	Failed  []PruneFailure
}

// RemoveExcess deletes every registered taxon not named in keep. Each taxon
// is removed atomically on its own; a failure is collected and reported, and
// the sweep continues with the remaining taxa. Keep entries that name no
// registered taxon are logged and ignored.
func (v *Validator) RemoveExcess(keep []types.TaxonID) (PruneReport, error) {
	keepSet := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		if !v.store.Has(id) {
			log.Warn("Keep list names unknown taxon", "taxon", id.String())
		}
		keepSet[id.String()] = struct{}{}
	}

	var rep PruneReport
	for _, id := range v.store.List() {
		if _, ok := keepSet[id.String()]; ok {
			rep.Kept = append(rep.Kept, id)
			continue
		}
		if err := v.store.Remove(id); err != nil {
			rep.Failed = append(rep.Failed, PruneFailure{Taxon: id, Err: err})
			continue
		}
		rep.Removed = append(rep.Removed, id)
	}

	if len(rep.Failed) > 0 {
		return rep, fmt.Errorf("%w: %d of %d taxa", ErrPartialRemoval, len(rep.Failed), len(rep.Failed)+len(rep.Removed))
	}
	return rep, nil
}

func dirExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

func fileNonEmpty(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir() && fi.Size() > 0
}
