// ============================================================================
// fdog command line interface
// ============================================================================
//
// Command structure:
//   fdog
//   ├── setup                      # Create a library skeleton, record its location
//   ├── taxa                       # List registered taxa with completeness flags
//   ├── check                      # Validate every artifact triple
//   ├── run                        # One ortholog-search job
//   ├── runs                       # Batch of jobs over an input directory
//   ├── addtaxon                   # Ingest one proteome FASTA
//   ├── addtaxa                    # Bulk ingestion driven by a mapping file
//   └── prune                      # Delete every taxon not on the keep list
//
// Exit codes (see ExitCode): 0 success, 1 fatal error, 2 validation findings,
// 3 unknown or unusable reference taxon, 4 partial batch failure.
// ============================================================================

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/trvinh/fDOG/internal/addtaxon"
	"github.com/trvinh/fDOG/internal/annotation"
	"github.com/trvinh/fDOG/internal/batch"
	"github.com/trvinh/fDOG/internal/config"
	"github.com/trvinh/fDOG/internal/dispatch"
	"github.com/trvinh/fDOG/internal/fasta"
	"github.com/trvinh/fDOG/internal/library"
	"github.com/trvinh/fDOG/internal/metrics"
	"github.com/trvinh/fDOG/internal/toolrun"
	"github.com/trvinh/fDOG/pkg/types"
)

const Version = "0.1.0"

// Process exit codes, distinguishable by scripts driving the tool.
const (
	ExitOK           = 0
	ExitFatal        = 1
	ExitValidation   = 2
	ExitMissingTaxon = 3
	ExitPartialBatch = 4
)

var (
	// errValidationFailed marks a check that found partial or corrupt taxa.
	errValidationFailed = errors.New("cli: library validation failed")

	// errPartialBatch marks a batch where some jobs failed but others ran.
	errPartialBatch = errors.New("cli: some jobs failed")
)

// ExitCode maps the error returned by Execute to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errValidationFailed):
		return ExitValidation
	case errors.Is(err, library.ErrTaxonNotFound), errors.Is(err, dispatch.ErrMissingRefTaxon):
		return ExitMissingTaxon
	case errors.Is(err, errPartialBatch), errors.Is(err, library.ErrPartialRemoval),
		errors.Is(err, batch.ErrBatchAborted):
		return ExitPartialBatch
	default:
		return ExitFatal
	}
}

var (
	configFile  string
	libraryRoot string
	verbose     bool
	cfg         *config.Config
)

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fdog",
		Short: "fdog: feature-aware ortholog search against a curated reference library",
		Long: `fdog maintains a library of reference taxa (curated proteome, search
index, and annotation weights per taxon) and dispatches ortholog-search
jobs against it, one job per seed FASTA file.`,
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}
			loaded, err := config.LoadOrDefault(configFile)
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (default ~/.fdog/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&libraryRoot, "library", "", "library root (overrides config and pathconfig)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")

	rootCmd.AddCommand(buildSetupCommand())
	rootCmd.AddCommand(buildTaxaCommand())
	rootCmd.AddCommand(buildCheckCommand())
	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildRunsCommand())
	rootCmd.AddCommand(buildAddTaxonCommand())
	rootCmd.AddCommand(buildAddTaxaCommand())
	rootCmd.AddCommand(buildPruneCommand())

	return rootCmd
}

// openStore resolves the library root and opens the store, creating the
// category directories on first use.
func openStore() (*library.Store, error) {
	root, err := config.ResolveLibraryRoot(libraryRoot, cfg)
	if err != nil {
		return nil, err
	}
	return library.Open(root)
}

// signalContext returns a context cancelled by SIGINT or SIGTERM, so long
// batches shut down gracefully and keep their run journal intact.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newDispatcher(store *library.Store, outDir string, collector *metrics.Collector) (*dispatch.Dispatcher, error) {
	var excluded map[string]bool
	if cfg.Annotation.ExcludeFile != "" {
		var err error
		excluded, err = annotation.LoadExclusions(cfg.Annotation.ExcludeFile)
		if err != nil {
			return nil, err
		}
	}
	if outDir == "" {
		outDir = cfg.Run.OutDir
	}
	return dispatch.New(dispatch.Options{
		Store:    store,
		Runner:   toolrun.ExecRunner{},
		Config:   cfg,
		Registry: annotation.NewRegistry(cfg.Annotation.Tools...),
		Excluded: excluded,
		OutDir:   outDir,
		Metrics:  collector,
	}), nil
}

func buildSetupCommand() *cobra.Command {
	var outDir string
	var includeData bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create a reference library skeleton and record its location",
		Long: `Create the genome_dir, blast_dir, and weight_dir skeleton under the
given directory, record it as the default library location, and seed the
per-user config file if none exists yet.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup(outDir, includeData)
		},
	}

	cmd.Flags().StringVarP(&outDir, "outPath", "o", "", "directory to hold the library")
	cmd.Flags().BoolVar(&includeData, "include-data", false, "library will be populated from a data archive; validate whatever is present")
	cmd.MarkFlagRequired("outPath")

	return cmd
}

func runSetup(outDir string, includeData bool) error {
	root, err := filepath.Abs(outDir)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}
	store, err := library.Open(root)
	if err != nil {
		return err
	}
	if err := config.WriteLibraryRoot(root); err != nil {
		return err
	}

	userCfg, err := config.DefaultPath()
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(userCfg); os.IsNotExist(statErr) {
		seeded := config.Default()
		seeded.Library.Root = root
		if err := config.Save(userCfg, seeded); err != nil {
			return err
		}
		fmt.Printf("Wrote default config to %s\n", userCfg)
	}

	genomeDir, indexDir, weightDir := store.Dirs()
	fmt.Printf("Library initialized at %s\n", root)
	fmt.Printf("  ├─ %s\n", genomeDir)
	fmt.Printf("  ├─ %s\n", indexDir)
	fmt.Printf("  └─ %s\n", weightDir)

	if includeData {
		if len(store.List()) == 0 {
			fmt.Println("No taxa yet; unpack the data archive into the library root, then run fdog check.")
		} else {
			rep := library.NewValidator(store).Check()
			fmt.Printf("Pre-populated data: %s\n", rep.String())
		}
	}
	return nil
}

func buildTaxaCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "taxa",
		Short: "List registered taxa in registration order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showTaxa(asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "machine-readable output")

	return cmd
}

func showTaxa(asJSON bool) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	rep := library.NewValidator(store).Check()

	problems := make(map[string][]string)
	for _, st := range append(rep.Partial, rep.Corrupt...) {
		problems[st.Taxon.String()] = st.Problems()
	}
	ids := store.List()

	if asJSON {
		type entry struct {
			Taxon    string   `json:"taxon"`
			TaxID    int      `json:"ncbi_taxid"`
			Complete bool     `json:"complete"`
			Problems []string `json:"problems,omitempty"`
		}
		out := make([]entry, 0, len(ids))
		for _, id := range ids {
			p := problems[id.String()]
			out = append(out, entry{Taxon: id.String(), TaxID: id.TaxID, Complete: len(p) == 0, Problems: p})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(ids) == 0 {
		fmt.Println("No taxa registered.")
		return nil
	}
	for _, id := range ids {
		if p := problems[id.String()]; len(p) > 0 {
			fmt.Printf("  ⚠️  %s (%s)\n", id, strings.Join(p, ", "))
		} else {
			fmt.Printf("  ✅ %s\n", id)
		}
	}
	fmt.Printf("%d taxa: %s\n", len(ids), rep.String())
	return nil
}

func buildCheckCommand() *cobra.Command {
	var genomeDir, indexDir, weightDir string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate every artifact triple in the library",
		Long: `Classify each registered taxon as ok, partial (artifacts missing), or
corrupt (artifacts present but failing integrity). Exits with code 2 when
any taxon is partial or corrupt.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(genomeDir, indexDir, weightDir)
		},
	}

	cmd.Flags().StringVar(&genomeDir, "genome", "", "genome directory (default <library>/genome_dir)")
	cmd.Flags().StringVar(&indexDir, "index", "", "search index directory (default <library>/blast_dir)")
	cmd.Flags().StringVar(&weightDir, "weight", "", "annotation weight directory (default <library>/weight_dir)")

	return cmd
}

func runCheck(genomeDir, indexDir, weightDir string) error {
	var (
		store *library.Store
		err   error
	)
	switch {
	case genomeDir == "" && indexDir == "" && weightDir == "":
		store, err = openStore()
	case genomeDir != "" && indexDir != "" && weightDir != "":
		store, err = library.OpenDirs(genomeDir, indexDir, weightDir)
	default:
		return fmt.Errorf("give all of --genome, --index, and --weight, or none")
	}
	if err != nil {
		return err
	}

	rep := library.NewValidator(store).Check()
	fmt.Printf("Checked %d taxa: %s\n", len(store.List()), rep.String())
	for _, id := range rep.OK {
		fmt.Printf("  ✅ %s\n", id)
	}
	for _, st := range rep.Partial {
		fmt.Printf("  ⚠️  %s\n", st.Taxon)
		for _, p := range st.Problems() {
			fmt.Printf("     └─ %s\n", p)
		}
	}
	for _, st := range rep.Corrupt {
		fmt.Printf("  ❌ %s\n", st.Taxon)
		for _, p := range st.Problems() {
			fmt.Printf("     └─ %s\n", p)
		}
	}

	if !rep.Clean() {
		return fmt.Errorf("%w: %s", errValidationFailed, rep.String())
	}
	return nil
}

func buildRunCommand() *cobra.Command {
	var (
		seqFile string
		jobName string
		refspec string
		outDir  string
		force   bool
		replace bool
		noAnno  bool
		cpus    int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one ortholog-search job",
		Long: `Search the given seed FASTA against one reference taxon and derive the
result artifacts (extended FASTA, phylogenetic profile, annotations). The
job directory appears atomically under the output directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := types.JobFlags{Force: force, Replace: replace, SkipAnnotation: noAnno, CPUs: cpus}
			return runSingleJob(seqFile, jobName, refspec, outDir, flags)
		},
	}

	cmd.Flags().StringVar(&seqFile, "seq", "", "seed FASTA file")
	cmd.Flags().StringVar(&jobName, "job", "", "job name (default: seed file base name)")
	cmd.Flags().StringVar(&refspec, "refspec", "", "reference taxon, NAME@TAXID@VERSION")
	cmd.Flags().StringVar(&outDir, "out", "", "output directory (default from config)")
	cmd.Flags().BoolVar(&force, "force", false, "delete existing output for this job name and rerun")
	cmd.Flags().BoolVar(&replace, "replace", false, "rerun and supersede existing output atomically")
	cmd.Flags().BoolVar(&noAnno, "no-anno", false, "skip the annotation phase")
	cmd.Flags().IntVar(&cpus, "cpus", 0, "worker threads for external tools (default from config)")
	cmd.MarkFlagRequired("seq")
	cmd.MarkFlagRequired("refspec")
	cmd.MarkFlagsMutuallyExclusive("force", "replace")

	return cmd
}

func runSingleJob(seqFile, jobName, refspec, outDir string, flags types.JobFlags) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	ref, err := types.ParseTaxonID(refspec)
	if err != nil {
		return err
	}
	if flags.CPUs == 0 {
		flags.CPUs = cfg.Run.CPUs
	}
	spec, err := batch.SpecForFile(seqFile, jobName, ref, flags)
	if err != nil {
		return err
	}
	d, err := newDispatcher(store, outDir, nil)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	res := d.Run(ctx, spec)
	switch res.Status {
	case types.StatusFailed:
		return res.Err
	case types.StatusSkipped:
		fmt.Printf("Job %s skipped: output already present (use --force or --replace to rerun)\n", res.JobName)
	default:
		fmt.Printf("Job %s finished in %s\n", res.JobName, res.Duration.Round(time.Millisecond))
		for _, f := range res.Outputs {
			fmt.Printf("  └─ %s\n", f)
		}
	}
	return nil
}

func buildRunsCommand() *cobra.Command {
	var (
		inputDir    string
		prefix      string
		refspec     string
		outDir      string
		maxJobs     int
		resume      bool
		force       bool
		replace     bool
		noAnno      bool
		cpus        int
		metricsPort int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Run one job per seed FASTA file in a directory",
		Long: `Build one job per sequence file in the input directory and run them with
bounded parallelism. One job failing never stops its siblings. Every job
event is journaled, so an interrupted batch can be resumed with --resume.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := types.JobFlags{Force: force, Replace: replace, SkipAnnotation: noAnno, CPUs: cpus}
			return runBatch(inputDir, prefix, refspec, outDir, maxJobs, metricsPort, resume, flags)
		},
	}

	cmd.Flags().StringVar(&inputDir, "input", "", "directory of seed FASTA files")
	cmd.Flags().StringVar(&prefix, "prefix", "", "prefix prepended to every job name")
	cmd.Flags().StringVar(&refspec, "refspec", "", "reference taxon, NAME@TAXID@VERSION")
	cmd.Flags().StringVar(&outDir, "out", "", "output directory (default from config)")
	cmd.Flags().IntVar(&maxJobs, "max-jobs", 0, "jobs in flight at once (default from config)")
	cmd.Flags().BoolVar(&resume, "resume", false, "skip jobs the run journal records as completed")
	cmd.Flags().BoolVar(&force, "force", false, "delete existing output per job and rerun")
	cmd.Flags().BoolVar(&replace, "replace", false, "rerun and supersede existing outputs atomically")
	cmd.Flags().BoolVar(&noAnno, "no-anno", false, "skip the annotation phase")
	cmd.Flags().IntVar(&cpus, "cpus", 0, "worker threads per job for external tools")
	cmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "serve Prometheus metrics on this port during the batch")
	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("refspec")
	cmd.MarkFlagsMutuallyExclusive("force", "replace")

	return cmd
}

func runBatch(inputDir, prefix, refspec, outDir string, maxJobs, metricsPort int, resume bool, flags types.JobFlags) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	ref, err := types.ParseTaxonID(refspec)
	if err != nil {
		return err
	}
	// Catch an unusable reference up front instead of failing every job.
	if err := library.NewValidator(store).CheckComplete(ref); err != nil {
		return fmt.Errorf("%w: %w", dispatch.ErrMissingRefTaxon, err)
	}
	if flags.CPUs == 0 {
		flags.CPUs = cfg.Run.CPUs
	}
	specs, err := batch.SpecsFromDir(inputDir, prefix, ref, flags)
	if err != nil {
		return err
	}

	if outDir == "" {
		outDir = cfg.Run.OutDir
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if maxJobs == 0 {
		maxJobs = cfg.Run.MaxParallel
	}

	var collector *metrics.Collector
	port := metricsPort
	if port == 0 && cfg.Metrics.Enabled {
		port = cfg.Metrics.Port
	}
	if port > 0 {
		collector = metrics.NewCollector()
		srv := collector.StartServer(port)
		defer metrics.StopServer(srv)
	}

	d, err := newDispatcher(store, outDir, collector)
	if err != nil {
		return err
	}

	runLog, prior, err := batch.OpenRunLog(filepath.Join(outDir, runLogName(prefix)))
	if err != nil {
		return err
	}
	defer runLog.Close()

	opts := batch.Options{Dispatcher: d, MaxParallel: maxJobs, RunLog: runLog}
	if resume {
		opts.Completed = batch.CompletedJobs(prior)
		if n := len(opts.Completed); n > 0 {
			fmt.Printf("Resuming: %d jobs already completed\n", n)
		}
	}

	ctx, stop := signalContext()
	defer stop()

	results, sum, runErr := batch.NewRunner(opts).RunAll(ctx, specs)
	for _, res := range results {
		switch res.Status {
		case types.StatusOK:
			fmt.Printf("  ✅ %s (%s)\n", res.JobName, res.Duration.Round(time.Millisecond))
		case types.StatusSkipped:
			fmt.Printf("  ⏭  %s (already done)\n", res.JobName)
		case types.StatusFailed:
			fmt.Printf("  ❌ %s: %v\n", res.JobName, res.Err)
		}
	}
	fmt.Printf("Batch: %s\n", sum.String())

	if runErr != nil {
		return runErr
	}
	if sum.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", errPartialBatch, sum.Failed, sum.Total())
	}
	return nil
}

// runLogName keeps one journal per batch prefix, so interleaved batches in
// the same output directory do not shadow each other's resume state.
func runLogName(prefix string) string {
	if prefix == "" {
		return "fdog.runlog"
	}
	return prefix + ".runlog"
}

func buildAddTaxonCommand() *cobra.Command {
	var (
		fastaFile    string
		taxid        int
		name         string
		ver          string
		core         bool
		noAnno       bool
		cpus         int
		replaceChars bool
		deleteChars  bool
		force        bool
	)

	cmd := &cobra.Command{
		Use:   "addtaxon",
		Short: "Ingest one proteome FASTA into the library",
		Long: `Sanitize the given proteome FASTA and register it as a reference taxon:
curated genome, optional search index (--core), and annotation weights
unless --no-anno is given. The taxon appears in the library atomically.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAddTaxon(addtaxon.Request{
				FastaFile:      fastaFile,
				TaxID:          taxid,
				Name:           name,
				Version:        ver,
				Core:           core,
				SkipAnnotation: noAnno,
				CPUs:           cpus,
				Policy:         residuePolicy(replaceChars, deleteChars),
				Force:          force,
			})
		},
	}

	cmd.Flags().StringVarP(&fastaFile, "fasta", "f", "", "proteome FASTA file")
	cmd.Flags().IntVarP(&taxid, "taxid", "i", 0, "NCBI taxonomy ID")
	cmd.Flags().StringVarP(&name, "name", "n", "", "species acronym (default UNK<taxid>)")
	cmd.Flags().StringVar(&ver, "ver", "", "proteome version tag (default: today, YYMMDD)")
	cmd.Flags().BoolVar(&core, "core", false, "also build the search index for use as a reference taxon")
	cmd.Flags().BoolVar(&noAnno, "no-anno", false, "skip the annotation weights")
	cmd.Flags().IntVar(&cpus, "cpus", 0, "worker threads for the annotation tool")
	cmd.Flags().BoolVar(&replaceChars, "replace-chars", false, "replace non-letter residues with X")
	cmd.Flags().BoolVar(&deleteChars, "delete-chars", false, "delete non-letter residues")
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing registration of the same taxon")
	cmd.MarkFlagRequired("fasta")
	cmd.MarkFlagRequired("taxid")
	cmd.MarkFlagsMutuallyExclusive("replace-chars", "delete-chars")

	return cmd
}

func residuePolicy(replaceChars, deleteChars bool) fasta.Policy {
	switch {
	case replaceChars:
		return fasta.PolicyReplace
	case deleteChars:
		return fasta.PolicyDelete
	default:
		return fasta.PolicyStrict
	}
}

func runAddTaxon(req addtaxon.Request) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	if req.CPUs == 0 {
		req.CPUs = cfg.Run.CPUs
	}
	ing := addtaxon.New(addtaxon.Options{Store: store, Runner: toolrun.ExecRunner{}, Config: cfg})

	ctx, stop := signalContext()
	defer stop()

	id, stats, err := ing.Add(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("Registered %s: %d sequences", id, stats.Records)
	if n := stats.PipesRewritten + stats.StopsStripped + stats.ResiduesFixed; n > 0 {
		fmt.Printf(" (sanitized: %d pipe IDs, %d stop markers, %d residues)",
			stats.PipesRewritten, stats.StopsStripped, stats.ResiduesFixed)
	}
	fmt.Println()
	return nil
}

func buildAddTaxaCommand() *cobra.Command {
	var (
		inputDir     string
		mappingFile  string
		core         bool
		noAnno       bool
		cpus         int
		replaceChars bool
		deleteChars  bool
		force        bool
	)

	cmd := &cobra.Command{
		Use:   "addtaxa",
		Short: "Ingest every mapped proteome FASTA in a directory",
		Long: `Ingest each file that appears both in the input directory and in the
mapping file (<fasta>TAB<taxid>[TAB<name>[TAB<version>]]). Taxa already
registered abort the batch unless --force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAddTaxa(addtaxon.BatchRequest{
				InputDir:       inputDir,
				MappingFile:    mappingFile,
				Core:           core,
				SkipAnnotation: noAnno,
				CPUs:           cpus,
				Policy:         residuePolicy(replaceChars, deleteChars),
				Force:          force,
			})
		},
	}

	cmd.Flags().StringVar(&inputDir, "input", "", "directory of proteome FASTA files")
	cmd.Flags().StringVarP(&mappingFile, "mapping", "m", "", "tab-separated mapping file")
	cmd.Flags().BoolVar(&core, "core", false, "also build search indexes")
	cmd.Flags().BoolVar(&noAnno, "no-anno", false, "skip the annotation weights")
	cmd.Flags().IntVar(&cpus, "cpus", 0, "worker threads for the annotation tool")
	cmd.Flags().BoolVar(&replaceChars, "replace-chars", false, "replace non-letter residues with X")
	cmd.Flags().BoolVar(&deleteChars, "delete-chars", false, "delete non-letter residues")
	cmd.Flags().BoolVar(&force, "force", false, "replace existing registrations")
	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("mapping")
	cmd.MarkFlagsMutuallyExclusive("replace-chars", "delete-chars")

	return cmd
}

func runAddTaxa(req addtaxon.BatchRequest) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	if req.CPUs == 0 {
		req.CPUs = cfg.Run.CPUs
	}
	ing := addtaxon.New(addtaxon.Options{Store: store, Runner: toolrun.ExecRunner{}, Config: cfg})

	ctx, stop := signalContext()
	defer stop()

	outcomes, err := ing.AddAll(ctx, req)
	if err != nil {
		return err
	}

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Printf("  ❌ %s: %v\n", o.FileName, o.Err)
			continue
		}
		fmt.Printf("  ✅ %s -> %s (%d sequences)\n", o.FileName, o.Taxon, o.Stats.Records)
	}
	fmt.Printf("Ingested %d of %d files\n", len(outcomes)-failed, len(outcomes))

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d files", errPartialBatch, failed, len(outcomes))
	}
	return nil
}

func buildPruneCommand() *cobra.Command {
	var keep []string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete every taxon not on the keep list",
		Long: `Remove the full artifact triple of every registered taxon whose composite
key is not listed in --keep. Each removal is atomic on its own; failures
are reported and the sweep continues.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(keep)
		},
	}

	cmd.Flags().StringSliceVar(&keep, "keep", nil, "comma-separated taxa to keep, NAME@TAXID@VERSION")
	cmd.MarkFlagRequired("keep")

	return cmd
}

func runPrune(keep []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	keepIDs := make([]types.TaxonID, 0, len(keep))
	for _, s := range keep {
		id, err := types.ParseTaxonID(strings.TrimSpace(s))
		if err != nil {
			return err
		}
		keepIDs = append(keepIDs, id)
	}

	rep, err := library.NewValidator(store).RemoveExcess(keepIDs)
	for _, id := range rep.Removed {
		fmt.Printf("  🗑  %s removed\n", id)
	}
	for _, f := range rep.Failed {
		fmt.Printf("  ❌ %s: %v\n", f.Taxon, f.Err)
	}
	fmt.Printf("Kept %d, removed %d, failed %d\n", len(rep.Kept), len(rep.Removed), len(rep.Failed))
	return err
}
