// Package addtaxon ingests proteome FASTA files into the reference library.
// One ingestion sanitizes the input, stages the genome artifact, optionally
// builds the search index and the annotation weights, and installs the
// triple through the library's atomic staging swap, so a failed pipeline
// never damages a previously registered taxon.
package addtaxon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/trvinh/fDOG/internal/config"
	"github.com/trvinh/fDOG/internal/fasta"
	"github.com/trvinh/fDOG/internal/library"
	"github.com/trvinh/fDOG/internal/toolrun"
	"github.com/trvinh/fDOG/pkg/types"
)

var log = slog.Default()

// Request describes one taxon ingestion.
type Request struct {
	FastaFile      string
	TaxID          int    // NCBI taxonomy ID, required
	Name           string // species acronym, UNK<taxid> when empty
	Version        string // proteome version tag, today's YYMMDD when empty
	Core           bool   // also build the search index volumes
	SkipAnnotation bool   // omit the weight artifact
	CPUs           int    // worker threads for the annotation tool
	Policy         fasta.Policy
	Force          bool // replace an existing registration
}

// TaxonID resolves the request's composite identifier, applying the name
// fallback and the date-based version default.
func (r Request) TaxonID(now time.Time) (types.TaxonID, error) {
	if r.TaxID <= 0 {
		return types.TaxonID{}, fmt.Errorf("addtaxon: taxonomy ID must be a positive integer")
	}
	name := strings.ToUpper(strings.TrimSpace(r.Name))
	if name == "" {
		name = types.FallbackName(r.TaxID)
	}
	ver := strings.TrimSpace(r.Version)
	if ver == "" {
		ver = types.DefaultVersion(now)
	}
	for _, field := range []string{name, ver} {
		if strings.ContainsAny(field, "@/\\ \t") {
			return types.TaxonID{}, fmt.Errorf("addtaxon: %q must not contain @, spaces, or path separators", field)
		}
	}
	return types.TaxonID{Name: name, TaxID: r.TaxID, Version: ver}, nil
}

// Options wires an Ingestor.
type Options struct {
	Store  *library.Store
	Runner toolrun.Runner
	Config *config.Config
}

// Ingestor adds taxa to the library.
type Ingestor struct {
	store  *library.Store
	runner toolrun.Runner
	cfg    *config.Config
}

func New(opts Options) *Ingestor {
	return &Ingestor{store: opts.Store, runner: opts.Runner, cfg: opts.Config}
}

// Add ingests one taxon: read and sanitize the FASTA, then build the staged
// artifact triple and commit it. Adding a registered taxon fails with
// ErrDuplicateTaxon unless the request forces replacement.
func (ing *Ingestor) Add(ctx context.Context, req Request) (types.TaxonID, fasta.CleanStats, error) {
	var stats fasta.CleanStats

	id, err := req.TaxonID(time.Now())
	if err != nil {
		return types.TaxonID{}, stats, err
	}
	if req.FastaFile == "" {
		return id, stats, fmt.Errorf("addtaxon: %s: no input FASTA file given", id)
	}

	recs, err := fasta.ReadFile(req.FastaFile)
	if err != nil {
		return id, stats, fmt.Errorf("addtaxon: %s: %w", id, err)
	}
	if len(recs) == 0 {
		return id, stats, fmt.Errorf("addtaxon: %s: %s contains no sequences", id, req.FastaFile)
	}
	stats, err = fasta.Clean(recs, req.Policy)
	if err != nil {
		return id, stats, fmt.Errorf("addtaxon: %s: sanitize %s: %w", id, req.FastaFile, err)
	}

	build := func(ctx context.Context, stage library.Stage) error {
		arts := stage.Artifacts()
		if err := fasta.WriteFile(arts.GenomeFasta(), recs); err != nil {
			return fmt.Errorf("write genome: %w", err)
		}
		marker := time.Now().Format(time.RFC3339) + "\n"
		if err := os.WriteFile(arts.CheckedMarker(), []byte(marker), 0o644); err != nil {
			return fmt.Errorf("write checked marker: %w", err)
		}

		if req.Core {
			inv := toolrun.Indexer(ing.cfg.ToolCommand(toolrun.KindIndexer), arts.GenomeFasta(), arts.IndexBase())
			if err := ing.runner.Run(ctx, inv); err != nil {
				return fmt.Errorf("build index: %w", err)
			}
			if err := linkGenome(stage); err != nil {
				return err
			}
		}

		if !req.SkipAnnotation {
			inv := toolrun.FAS(ing.cfg.ToolCommand(toolrun.KindFAS), arts.GenomeFasta(),
				filepath.Dir(arts.WeightFile), req.CPUs, req.Force)
			if err := ing.runner.Run(ctx, inv); err != nil {
				return fmt.Errorf("annotate: %w", err)
			}
		}
		return nil
	}

	if err := ing.store.Add(ctx, id, build, req.Force); err != nil {
		return id, stats, err
	}

	log.Info("Taxon ingested", "taxon", id.String(), "records", stats.Records,
		"core", req.Core, "annotated", !req.SkipAnnotation)
	return id, stats, nil
}

// linkGenome places the genome FASTA next to the index volumes as a relative
// symlink into the genome directory. The link is created in the staging area
// at the same depth it will occupy after the commit rename, so the relative
// target resolves once the taxon is installed. Filesystems without symlink
// support get a plain copy instead.
func linkGenome(stage library.Stage) error {
	key := stage.Taxon.String()
	link := filepath.Join(stage.IndexDir, key+".fa")
	target := filepath.Join("..", "..", library.GenomeDirName, key, key+".fa")

	if err := os.Symlink(target, link); err == nil {
		return nil
	}
	if err := copyFile(stage.Artifacts().GenomeFasta(), link); err != nil {
		return fmt.Errorf("place genome beside index: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
