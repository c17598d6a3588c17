// Package dispatch turns one job specification into result artifacts by
// driving the external search and annotation tools against a validated
// reference taxon. Outputs appear atomically: a job either leaves its full
// result directory behind or nothing at all.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/trvinh/fDOG/internal/annotation"
	"github.com/trvinh/fDOG/internal/config"
	"github.com/trvinh/fDOG/internal/library"
	"github.com/trvinh/fDOG/internal/metrics"
	"github.com/trvinh/fDOG/internal/toolrun"
	"github.com/trvinh/fDOG/pkg/types"
)

var log = slog.Default()

// ErrMissingRefTaxon marks a job whose reference taxon is unknown,
// incomplete, or corrupt. The wrapped library error says which.
var ErrMissingRefTaxon = errors.New("dispatch: reference taxon unavailable")

const (
	stagePrefix = ".job-"
	parkPrefix  = ".old-"
)

// Options wires a Dispatcher.
type Options struct {
	Store    *library.Store
	Runner   toolrun.Runner
	Config   *config.Config
	Registry *annotation.Registry
	Excluded map[string]bool // annotation tools to skip
	OutDir   string
	Metrics  *metrics.Collector // optional
}

// Dispatcher runs single jobs. It is safe for concurrent use; each job works
// in its own staging directory.
type Dispatcher struct {
	store    *library.Store
	check    *library.Validator
	runner   toolrun.Runner
	cfg      *config.Config
	registry *annotation.Registry
	excluded map[string]bool
	outDir   string
	metrics  *metrics.Collector
}

func New(opts Options) *Dispatcher {
	return &Dispatcher{
		store:    opts.Store,
		check:    library.NewValidator(opts.Store),
		runner:   opts.Runner,
		cfg:      opts.Config,
		registry: opts.Registry,
		excluded: opts.Excluded,
		outDir:   opts.OutDir,
		metrics:  opts.Metrics,
	}
}

// OutputFiles returns the result files a finished job leaves behind.
func OutputFiles(outDir, jobName string) (extendedFasta, profile string) {
	jobDir := filepath.Join(outDir, jobName)
	return filepath.Join(jobDir, jobName+".extended.fa"),
		filepath.Join(jobDir, jobName+".phyloprofile")
}

// Run executes one job to a terminal result. It never panics the caller: any
// failure, including a reference taxon problem or an external tool error,
// comes back inside the result.
func (d *Dispatcher) Run(ctx context.Context, spec types.JobSpec) types.JobResult {
	start := time.Now()
	if d.metrics != nil {
		d.metrics.JobStarted()
	}

	res := d.run(ctx, spec)
	res.JobName = spec.JobName
	res.Index = spec.Index
	res.Duration = time.Since(start)

	if d.metrics != nil {
		d.metrics.JobFinished(res)
		var toolErr *toolrun.ToolError
		if errors.As(res.Err, &toolErr) {
			d.metrics.ToolFailure(string(toolErr.Tool))
		}
	}

	switch res.Status {
	case types.StatusFailed:
		log.Error("Job failed", "job", spec.JobName, "error", res.Err)
	case types.StatusSkipped:
		log.Info("Job skipped, output exists", "job", spec.JobName)
	default:
		log.Info("Job finished", "job", spec.JobName, "duration", res.Duration.String())
	}
	return res
}

func (d *Dispatcher) run(ctx context.Context, spec types.JobSpec) types.JobResult {
	fail := func(err error) types.JobResult {
		return types.JobResult{Status: types.StatusFailed, Err: err}
	}

	if _, err := os.Stat(spec.SeqFile); err != nil {
		return fail(fmt.Errorf("job %s: input %s: %w", spec.JobName, spec.SeqFile, err))
	}

	// The reference taxon must resolve to a complete, healthy triple before
	// any tool runs.
	set, err := d.store.Get(spec.RefTaxon)
	if err != nil {
		return fail(fmt.Errorf("job %s: %w: %w", spec.JobName, ErrMissingRefTaxon, err))
	}
	if err := d.check.CheckComplete(spec.RefTaxon); err != nil {
		return fail(fmt.Errorf("job %s: %w: %w", spec.JobName, ErrMissingRefTaxon, err))
	}

	jobDir := filepath.Join(d.outDir, spec.JobName)
	extended, profile := OutputFiles(d.outDir, spec.JobName)

	if !spec.Flags.Force && !spec.Flags.Replace {
		if pathExists(extended) {
			return types.JobResult{Status: types.StatusSkipped}
		}
	}
	if spec.Flags.Force && !spec.Flags.Replace {
		// Force discards the prior output up front; Replace would keep it
		// until the new result is ready.
		if err := os.RemoveAll(jobDir); err != nil {
			return fail(fmt.Errorf("job %s: clear previous output: %w", spec.JobName, err))
		}
	}

	if err := os.MkdirAll(d.outDir, 0o755); err != nil {
		return fail(fmt.Errorf("job %s: %w", spec.JobName, err))
	}
	stageDir := filepath.Join(d.outDir, stagePrefix+uuid.NewString())
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return fail(fmt.Errorf("job %s: create staging: %w", spec.JobName, err))
	}
	defer os.RemoveAll(stageDir)

	stageExtended := filepath.Join(stageDir, filepath.Base(extended))
	stageProfile := filepath.Join(stageDir, filepath.Base(profile))

	// Search phase.
	inv := toolrun.Search(d.cfg.ToolCommand(toolrun.KindSearch),
		spec.SeqFile, set.IndexBase(), stageExtended, spec.Flags.CPUs)
	if err := d.runner.Run(ctx, inv); err != nil {
		return fail(fmt.Errorf("job %s: search phase: %w", spec.JobName, err))
	}
	if !pathExists(stageExtended) {
		return fail(fmt.Errorf("job %s: search tool produced no %s", spec.JobName, filepath.Base(extended)))
	}
	if err := writeProfile(stageProfile, spec.JobName, stageExtended); err != nil {
		return fail(fmt.Errorf("job %s: %w", spec.JobName, err))
	}

	// Annotation phase.
	if !spec.Flags.SkipAnnotation && d.registry != nil {
		for _, tool := range d.registry.Active(d.excluded) {
			if err := ctx.Err(); err != nil {
				return fail(err)
			}
			if err := d.runAnnotation(ctx, tool, spec, stageDir, stageExtended); err != nil {
				return fail(fmt.Errorf("job %s: annotation phase: %w", spec.JobName, err))
			}
		}
	}

	if err := d.install(spec.JobName, stageDir, jobDir); err != nil {
		return fail(err)
	}

	return types.JobResult{
		Status:  types.StatusOK,
		Outputs: []string{extended, profile},
	}
}

// runAnnotation dispatches one registered annotation tool over the search
// output. The tool set is closed; an unknown registry name is a
// configuration error that fails the job.
func (d *Dispatcher) runAnnotation(ctx context.Context, tool string, spec types.JobSpec, stageDir, extendedFasta string) error {
	switch tool {
	case "fas":
		inv := toolrun.FAS(d.cfg.ToolCommand(toolrun.KindFAS),
			extendedFasta, stageDir, spec.Flags.CPUs, spec.Flags.Force || spec.Flags.Replace)
		return d.runner.Run(ctx, inv)
	case "signalp":
		prefix := filepath.Join(stageDir, spec.JobName+".signalp")
		return d.runner.Run(ctx, toolrun.SignalP(d.cfg.ToolCommand(toolrun.KindSignalP), extendedFasta, prefix))
	case "tmhmm":
		out, err := os.Create(filepath.Join(stageDir, spec.JobName+".tmhmm"))
		if err != nil {
			return err
		}
		runErr := d.runner.Run(ctx, toolrun.TMHMM(d.cfg.ToolCommand(toolrun.KindTMHMM), extendedFasta, out))
		if closeErr := out.Close(); runErr == nil {
			runErr = closeErr
		}
		return runErr
	default:
		return fmt.Errorf("unknown annotation tool %q", tool)
	}
}

// install moves the staged result into place. A prior output directory is
// parked first and deleted only once the new one is in place; on failure it
// is restored.
func (d *Dispatcher) install(jobName, stageDir, jobDir string) error {
	var parked string
	if pathExists(jobDir) {
		parked = filepath.Join(d.outDir, parkPrefix+uuid.NewString())
		if err := os.Rename(jobDir, parked); err != nil {
			return fmt.Errorf("job %s: park previous output: %w", jobName, err)
		}
	}
	if err := os.Rename(stageDir, jobDir); err != nil {
		if parked != "" {
			if restoreErr := os.Rename(parked, jobDir); restoreErr != nil {
				log.Error("Failed to restore previous output", "job", jobName, "error", restoreErr)
			}
		}
		return fmt.Errorf("job %s: install output: %w", jobName, err)
	}
	if parked != "" {
		os.RemoveAll(parked)
	}
	return nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
