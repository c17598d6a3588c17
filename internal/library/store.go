// Package library manages the on-disk reference library: three parallel
// artifact categories per taxon (genome, search index, annotation weights),
// with atomic add/replace/remove and completeness validation.
package library

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/trvinh/fDOG/pkg/types"
)

var log = slog.Default()

// Directory names under a library root. Kept identical to what the wider
// fdog ecosystem expects, so a library populated elsewhere opens unchanged.
const (
	GenomeDirName = "genome_dir"
	IndexDirName  = "blast_dir"
	WeightDirName = "weight_dir"

	catalogName = "library.json"
)

const (
	stagePrefix = ".stage-"
	parkPrefix  = ".old-"
)

// Store is the library of reference taxa. Reads are shared; mutating
// operations serialize on writeMu and hold the state lock only for the final
// swap, so readers observe either the old artifact set or the new one, never
// a partial mix.
type Store struct {
	root      string // empty when opened from explicit directories
	genomeDir string
	indexDir  string
	weightDir string

	writeMu sync.Mutex   // serializes Add and Remove end to end
	mu      sync.RWMutex // guards taxa and order
	taxa    map[string]types.TaxonID
	order   []types.TaxonID // registration order
}

// Open binds a store to the standard layout under root, creating the three
// category directories as needed. Registration order comes from the catalog
// file; taxa found on disk but absent from the catalog are appended in name
// order.
func Open(root string) (*Store, error) {
	s := &Store{
		root:      root,
		genomeDir: filepath.Join(root, GenomeDirName),
		indexDir:  filepath.Join(root, IndexDirName),
		weightDir: filepath.Join(root, WeightDirName),
	}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenDirs binds a store to three explicit category directories. No catalog
// is kept in this mode; registration order is the name order of the taxa
// found on disk.
func OpenDirs(genomeDir, indexDir, weightDir string) (*Store, error) {
	s := &Store{genomeDir: genomeDir, indexDir: indexDir, weightDir: weightDir}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	for _, dir := range []string{s.genomeDir, s.indexDir, s.weightDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("library: create %s: %w", dir, err)
		}
	}
	s.sweepStale()

	var order []types.TaxonID
	if path := s.catalogPath(); path != "" {
		var err error
		order, err = loadCatalog(path)
		if err != nil {
			return err
		}
	}

	s.taxa = make(map[string]types.TaxonID)
	for _, id := range order {
		s.register(id)
	}
	onDisk := s.scan()
	sort.Slice(onDisk, func(i, j int) bool { return onDisk[i].String() < onDisk[j].String() })
	for _, id := range onDisk {
		s.register(id)
	}

	return s.persistCatalog()
}

func (s *Store) register(id types.TaxonID) {
	key := id.String()
	if _, ok := s.taxa[key]; ok {
		return
	}
	s.taxa[key] = id
	s.order = append(s.order, id)
}

// sweepStale removes staging and park leftovers from a crashed run. Both are
// transient: staged artifacts were never committed, parked ones were already
// superseded.
func (s *Store) sweepStale() {
	for _, dir := range []string{s.genomeDir, s.indexDir, s.weightDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			name := e.Name()
			if strings.HasPrefix(name, stagePrefix) || strings.HasPrefix(name, parkPrefix) {
				log.Warn("Removing stale staging leftover", "path", filepath.Join(dir, name))
				os.RemoveAll(filepath.Join(dir, name))
			}
		}
	}
}

// scan collects every taxon that has an artifact in any category. Entries
// whose names are not valid composite keys are ignored.
func (s *Store) scan() []types.TaxonID {
	seen := make(map[string]types.TaxonID)
	collect := func(name string) {
		id, err := types.ParseTaxonID(name)
		if err != nil {
			return
		}
		seen[id.String()] = id
	}

	for _, dir := range []string{s.genomeDir, s.indexDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				collect(e.Name())
			}
		}
	}
	entries, err := os.ReadDir(s.weightDir)
	if err == nil {
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
				collect(strings.TrimSuffix(e.Name(), ".json"))
			}
		}
	}

	ids := make([]types.TaxonID, 0, len(seen))
	for _, id := range seen {
		ids = append(ids, id)
	}
	return ids
}

func (s *Store) catalogPath() string {
	if s.root == "" {
		return ""
	}
	return filepath.Join(s.root, catalogName)
}

func (s *Store) persistCatalog() error {
	path := s.catalogPath()
	if path == "" {
		return nil
	}
	s.mu.RLock()
	order := make([]types.TaxonID, len(s.order))
	copy(order, s.order)
	s.mu.RUnlock()
	return saveCatalog(path, order)
}

// Root returns the library root, empty for a store opened from explicit
// directories.
func (s *Store) Root() string { return s.root }

// Dirs returns the three category directories.
func (s *Store) Dirs() (genomeDir, indexDir, weightDir string) {
	return s.genomeDir, s.indexDir, s.weightDir
}

// Has reports whether id is registered.
func (s *Store) Has(id types.TaxonID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.taxa[id.String()]
	return ok
}

// Get resolves the artifact set of a registered taxon.
func (s *Store) Get(id types.TaxonID) (types.ArtifactSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.taxa[id.String()]; !ok {
		return types.ArtifactSet{}, fmt.Errorf("%w: %s", ErrTaxonNotFound, id)
	}
	return s.artifactSet(id), nil
}

// List returns all registered taxa in registration order.
func (s *Store) List() []types.TaxonID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.TaxonID, len(s.order))
	copy(out, s.order)
	return out
}

func (s *Store) artifactSet(id types.TaxonID) types.ArtifactSet {
	key := id.String()
	return types.ArtifactSet{
		Taxon:      id,
		GenomeDir:  filepath.Join(s.genomeDir, key),
		IndexDir:   filepath.Join(s.indexDir, key),
		WeightFile: filepath.Join(s.weightDir, key+".json"),
	}
}

// Stage is the scratch area handed to a BuildFunc. Each category stages
// inside its final directory, so the commit renames never cross a filesystem
// boundary.
type Stage struct {
	Taxon      types.TaxonID
	GenomeDir  string // staged genome directory
	IndexDir   string // staged search-index directory
	WeightFile string // staged weight file path

	weightDir string
}

// Artifacts returns the staged triple viewed as an ArtifactSet, so builds can
// use the same path helpers as committed sets.
func (st Stage) Artifacts() types.ArtifactSet {
	return types.ArtifactSet{
		Taxon:      st.Taxon,
		GenomeDir:  st.GenomeDir,
		IndexDir:   st.IndexDir,
		WeightFile: st.WeightFile,
	}
}

func (st Stage) discard() {
	os.RemoveAll(st.GenomeDir)
	os.RemoveAll(st.IndexDir)
	os.RemoveAll(st.weightDir)
}

func (s *Store) newStage(id types.TaxonID) (Stage, error) {
	tag := stagePrefix + uuid.NewString()
	st := Stage{
		Taxon:     id,
		GenomeDir: filepath.Join(s.genomeDir, tag),
		IndexDir:  filepath.Join(s.indexDir, tag),
		weightDir: filepath.Join(s.weightDir, tag),
	}
	st.WeightFile = filepath.Join(st.weightDir, id.String()+".json")

	for _, dir := range []string{st.GenomeDir, st.IndexDir, st.weightDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			st.discard()
			return Stage{}, fmt.Errorf("library: create stage: %w", err)
		}
	}
	return st, nil
}

// BuildFunc populates a staged artifact triple. It may leave categories
// unbuilt; an annotation-less add stages no weight file, and the taxon is
// then reported incomplete by the validator until the weights arrive.
type BuildFunc func(ctx context.Context, stage Stage) error

// Add registers a new taxon. The build runs entirely in a staging area; only
// after it succeeds is the triple swapped into place, with any previous set
// parked aside and deleted after the new one is fully installed. A failed
// build discards the stage and leaves the library byte-identical.
//
// Without replace, adding a registered taxon fails with ErrDuplicateTaxon
// before any build work starts.
func (s *Store) Add(ctx context.Context, id types.TaxonID, build BuildFunc, replace bool) error {
	if id.IsZero() {
		return fmt.Errorf("library: add: empty taxon id")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.Has(id) && !replace {
		return fmt.Errorf("%w: %s", ErrDuplicateTaxon, id)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stage, err := s.newStage(id)
	if err != nil {
		return err
	}
	defer stage.discard()

	if err := build(ctx, stage); err != nil {
		return fmt.Errorf("library: build %s: %w", id, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.commit(id, stage); err != nil {
		return err
	}

	log.Info("Taxon registered", "taxon", id.String(), "replace", replace)
	return s.persistCatalog()
}

// commit swaps staged artifacts into place under the state lock. Existing
// categories are parked first and removed only once every new artifact is
// installed; on any rename failure the parked set is restored.
func (s *Store) commit(id types.TaxonID, stage Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	final := s.artifactSet(id)
	tag := parkPrefix + uuid.NewString()

	cats := []struct {
		name   types.ArtifactCategory
		staged string
		final  string
	}{
		{types.CategoryGenome, stage.GenomeDir, final.GenomeDir},
		{types.CategoryIndex, stage.IndexDir, final.IndexDir},
		{types.CategoryWeights, stage.WeightFile, final.WeightFile},
	}

	type move struct{ from, to string }
	var parked, installed []move

	rollback := func() {
		for _, m := range installed {
			os.RemoveAll(m.to)
		}
		for _, m := range parked {
			if err := os.Rename(m.to, m.from); err != nil {
				log.Error("Failed to restore parked artifact", "taxon", id.String(), "path", m.from, "error", err)
			}
		}
	}

	for _, c := range cats {
		if pathExists(c.final) {
			park := filepath.Join(filepath.Dir(c.final), tag+"-"+string(c.name))
			if err := os.Rename(c.final, park); err != nil {
				rollback()
				return fmt.Errorf("library: park %s of %s: %w", c.name, id, err)
			}
			parked = append(parked, move{from: c.final, to: park})
		}
		if stageBuilt(c.staged) {
			if err := os.Rename(c.staged, c.final); err != nil {
				rollback()
				return fmt.Errorf("library: install %s of %s: %w", c.name, id, err)
			}
			installed = append(installed, move{from: c.staged, to: c.final})
		}
	}

	// New set fully in place, the parked one can go.
	for _, m := range parked {
		os.RemoveAll(m.to)
	}

	s.register(id)
	return nil
}

// Remove deletes the artifact triple of id. Disk comes first; registration
// is dropped only when every category is gone, so a partial removal surfaces
// as ErrPartialRemoval and can be retried.
func (s *Store) Remove(id types.TaxonID) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if !s.Has(id) {
		return fmt.Errorf("%w: %s", ErrTaxonNotFound, id)
	}

	set := s.artifactSet(id)
	targets := []struct {
		cat  types.ArtifactCategory
		path string
	}{
		{types.CategoryGenome, set.GenomeDir},
		{types.CategoryIndex, set.IndexDir},
		{types.CategoryWeights, set.WeightFile},
	}

	var failed []string
	for _, t := range targets {
		if err := os.RemoveAll(t.path); err != nil {
			log.Error("Failed to remove artifact", "taxon", id.String(), "category", string(t.cat), "error", err)
			failed = append(failed, string(t.cat))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: %s (%s)", ErrPartialRemoval, id, strings.Join(failed, ", "))
	}

	s.mu.Lock()
	delete(s.taxa, id.String())
	for i, t := range s.order {
		if t == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	log.Info("Taxon removed", "taxon", id.String())
	return s.persistCatalog()
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// stageBuilt reports whether the build actually populated a staged path. An
// empty staged directory counts as unbuilt.
func stageBuilt(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	if !fi.IsDir() {
		return true
	}
	entries, err := os.ReadDir(path)
	return err == nil && len(entries) > 0
}
