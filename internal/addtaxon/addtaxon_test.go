package addtaxon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trvinh/fDOG/internal/config"
	"github.com/trvinh/fDOG/internal/fasta"
	"github.com/trvinh/fDOG/internal/library"
	"github.com/trvinh/fDOG/internal/toolrun"
	"github.com/trvinh/fDOG/pkg/types"
)

// fakeRunner fabricates the side effects of the external tools: index
// volumes for the indexer, a weight JSON for the annotator.
type fakeRunner struct {
	mu    sync.Mutex
	calls []toolrun.Invocation
	fail  map[toolrun.Kind]error
}

func (f *fakeRunner) Run(_ context.Context, inv toolrun.Invocation) error {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	f.mu.Unlock()

	if err := f.fail[inv.Kind]; err != nil {
		return err
	}
	switch inv.Kind {
	case toolrun.KindIndexer:
		base := argValue(inv.Args, "-out")
		for _, ext := range types.IndexVolumeExts {
			if err := os.WriteFile(base+ext, []byte("idx"), 0o644); err != nil {
				return err
			}
		}
	case toolrun.KindFAS:
		in := argValue(inv.Args, "-i")
		outDir := argValue(inv.Args, "-o")
		name := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in)) + ".json"
		return os.WriteFile(filepath.Join(outDir, name), []byte("{}"), 0o644)
	}
	return nil
}

func (f *fakeRunner) kinds() []toolrun.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]toolrun.Kind, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Kind
	}
	return out
}

func argValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func newIngestor(t *testing.T, runner toolrun.Runner) (*Ingestor, *library.Store) {
	t.Helper()
	s, err := library.Open(t.TempDir())
	require.NoError(t, err)
	return New(Options{Store: s, Runner: runner, Config: config.Default()}), s
}

func writeFasta(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestTaxonIDDefaults(t *testing.T) {
	now := time.Date(2023, 8, 1, 12, 0, 0, 0, time.UTC)

	id, err := Request{TaxID: 4932}.TaxonID(now)
	require.NoError(t, err)
	assert.Equal(t, types.TaxonID{Name: "UNK4932", TaxID: 4932, Version: "230801"}, id)

	id, err = Request{TaxID: 4932, Name: "yeast", Version: "v2"}.TaxonID(now)
	require.NoError(t, err)
	assert.Equal(t, "YEAST@4932@v2", id.String())

	_, err = Request{}.TaxonID(now)
	assert.Error(t, err)

	_, err = Request{TaxID: 4932, Name: "bad name"}.TaxonID(now)
	assert.Error(t, err)

	_, err = Request{TaxID: 4932, Version: "a@b"}.TaxonID(now)
	assert.Error(t, err)
}

func TestAddRegistersCompleteTaxon(t *testing.T) {
	fake := &fakeRunner{}
	ing, s := newIngestor(t, fake)
	in := writeFasta(t, "yeast.fa", ">sp|P001|A first protein\nMKTLLV*\n>p2\nACDEFG\n")

	id, stats, err := ing.Add(context.Background(), Request{
		FastaFile: in, TaxID: 4932, Name: "YEAST", Version: "230801", Core: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "YEAST@4932@230801", id.String())
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, 1, stats.PipesRewritten)
	assert.Equal(t, 1, stats.StopsStripped)

	require.True(t, s.Has(id))
	arts, err := s.Get(id)
	require.NoError(t, err)

	genome, err := os.ReadFile(arts.GenomeFasta())
	require.NoError(t, err)
	assert.Contains(t, string(genome), ">sp_P001_A")
	assert.NotContains(t, string(genome), "*")

	marker, err := os.ReadFile(arts.CheckedMarker())
	require.NoError(t, err)
	assert.NotEmpty(t, marker)

	for _, vol := range arts.IndexVolumes() {
		info, statErr := os.Stat(vol)
		require.NoError(t, statErr)
		assert.NotZero(t, info.Size())
	}
	assert.FileExists(t, arts.WeightFile)

	assert.NoError(t, library.NewValidator(s).CheckComplete(id))
	assert.Equal(t, []toolrun.Kind{toolrun.KindIndexer, toolrun.KindFAS}, fake.kinds())
}

func TestAddLinksGenomeBesideIndex(t *testing.T) {
	fake := &fakeRunner{}
	ing, s := newIngestor(t, fake)
	in := writeFasta(t, "yeast.fa", ">p1\nMKTLLV\n")

	id, _, err := ing.Add(context.Background(), Request{
		FastaFile: in, TaxID: 4932, Name: "YEAST", Version: "230801", Core: true, SkipAnnotation: true,
	})
	require.NoError(t, err)

	arts, err := s.Get(id)
	require.NoError(t, err)
	link := filepath.Join(arts.IndexDir, id.String()+".fa")

	// Whether symlinked or copied, the genome must be readable beside the
	// index volumes and hold the curated sequences.
	payload, err := os.ReadFile(link)
	require.NoError(t, err)
	assert.Contains(t, string(payload), ">p1")

	if target, readErr := os.Readlink(link); readErr == nil {
		assert.Equal(t, filepath.Join("..", "..", library.GenomeDirName, id.String(), id.String()+".fa"), target)
	}
}

func TestAddWithoutCoreSkipsIndexer(t *testing.T) {
	fake := &fakeRunner{}
	ing, s := newIngestor(t, fake)
	in := writeFasta(t, "yeast.fa", ">p1\nMKTLLV\n")

	id, _, err := ing.Add(context.Background(), Request{FastaFile: in, TaxID: 4932})
	require.NoError(t, err)

	assert.Equal(t, []toolrun.Kind{toolrun.KindFAS}, fake.kinds())
	arts, err := s.Get(id)
	require.NoError(t, err)
	_, statErr := os.Stat(arts.IndexVolumes()[0])
	assert.True(t, os.IsNotExist(statErr))
}

func TestAddSkipAnnotationLeavesTaxonIncomplete(t *testing.T) {
	fake := &fakeRunner{}
	ing, s := newIngestor(t, fake)
	in := writeFasta(t, "yeast.fa", ">p1\nMKTLLV\n")

	id, _, err := ing.Add(context.Background(), Request{
		FastaFile: in, TaxID: 4932, Core: true, SkipAnnotation: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []toolrun.Kind{toolrun.KindIndexer}, fake.kinds())

	err = library.NewValidator(s).CheckComplete(id)
	assert.ErrorIs(t, err, library.ErrTaxonIncomplete)
}

func TestAddDuplicateWithoutForce(t *testing.T) {
	fake := &fakeRunner{}
	ing, _ := newIngestor(t, fake)
	in := writeFasta(t, "yeast.fa", ">p1\nMKTLLV\n")
	req := Request{FastaFile: in, TaxID: 4932, Name: "YEAST", Version: "230801", SkipAnnotation: true}

	_, _, err := ing.Add(context.Background(), req)
	require.NoError(t, err)

	_, _, err = ing.Add(context.Background(), req)
	assert.ErrorIs(t, err, library.ErrDuplicateTaxon)
}

func TestAddForceReplacesExisting(t *testing.T) {
	fake := &fakeRunner{}
	ing, s := newIngestor(t, fake)
	req := Request{TaxID: 4932, Name: "YEAST", Version: "230801", SkipAnnotation: true}

	req.FastaFile = writeFasta(t, "one.fa", ">p1\nMKTLLV\n")
	id, _, err := ing.Add(context.Background(), req)
	require.NoError(t, err)

	req.FastaFile = writeFasta(t, "two.fa", ">p2\nACDEFG\n")
	req.Force = true
	_, _, err = ing.Add(context.Background(), req)
	require.NoError(t, err)

	arts, err := s.Get(id)
	require.NoError(t, err)
	genome, err := os.ReadFile(arts.GenomeFasta())
	require.NoError(t, err)
	assert.Contains(t, string(genome), ">p2")
	assert.NotContains(t, string(genome), ">p1")
}

func TestAddFailedPipelineKeepsPriorTaxonIntact(t *testing.T) {
	fake := &fakeRunner{}
	ing, s := newIngestor(t, fake)
	req := Request{TaxID: 4932, Name: "YEAST", Version: "230801"}

	req.FastaFile = writeFasta(t, "one.fa", ">p1\nMKTLLV\n")
	id, _, err := ing.Add(context.Background(), req)
	require.NoError(t, err)

	arts, err := s.Get(id)
	require.NoError(t, err)
	before, err := os.ReadFile(arts.GenomeFasta())
	require.NoError(t, err)

	fake.fail = map[toolrun.Kind]error{toolrun.KindFAS: fmt.Errorf("annotator crashed")}
	req.FastaFile = writeFasta(t, "two.fa", ">p2\nACDEFG\n")
	req.Force = true
	_, _, err = ing.Add(context.Background(), req)
	require.Error(t, err)

	require.True(t, s.Has(id))
	after, err := os.ReadFile(arts.GenomeFasta())
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.NoError(t, library.NewValidator(s).CheckComplete(id))
}

func TestAddRejectsDirtySequencesUnderStrictPolicy(t *testing.T) {
	fake := &fakeRunner{}
	ing, s := newIngestor(t, fake)
	in := writeFasta(t, "dirty.fa", ">p1\nMK-TL.LV\n")

	id, _, err := ing.Add(context.Background(), Request{FastaFile: in, TaxID: 4932})
	assert.ErrorIs(t, err, fasta.ErrInvalidSequence)
	assert.False(t, s.Has(id))
	assert.Empty(t, fake.kinds(), "no tool should run on rejected input")
}

func TestAddReplacePolicyFixesDirtySequences(t *testing.T) {
	fake := &fakeRunner{}
	ing, s := newIngestor(t, fake)
	in := writeFasta(t, "dirty.fa", ">p1\nMK-TLLV\n")

	id, stats, err := ing.Add(context.Background(), Request{
		FastaFile: in, TaxID: 4932, Policy: fasta.PolicyReplace, SkipAnnotation: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ResiduesFixed)

	arts, err := s.Get(id)
	require.NoError(t, err)
	genome, err := os.ReadFile(arts.GenomeFasta())
	require.NoError(t, err)
	assert.Contains(t, string(genome), "MKXTLLV")
}

func TestAddMissingInput(t *testing.T) {
	ing, _ := newIngestor(t, &fakeRunner{})

	_, _, err := ing.Add(context.Background(), Request{TaxID: 4932})
	assert.Error(t, err)

	_, _, err = ing.Add(context.Background(), Request{
		FastaFile: filepath.Join(t.TempDir(), "absent.fa"), TaxID: 4932,
	})
	assert.Error(t, err)
}
