// Package batch fans one job specification per input file out to the
// dispatcher, with bounded parallelism, ordered results, and an append-only
// run journal that lets an interrupted batch resume where it stopped.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/trvinh/fDOG/pkg/types"
)

var log = slog.Default()

var (
	// ErrEmptyInputSet indicates a batch with nothing to run.
	ErrEmptyInputSet = errors.New("batch: no input sequence files")

	// ErrBatchAborted indicates a cancelled batch. Jobs already finished
	// keep their results; jobs never dispatched have none.
	ErrBatchAborted = errors.New("batch: aborted before all jobs ran")
)

// seqFileExts are the input extensions a batch directory scan accepts.
var seqFileExts = []string{".fa", ".fasta", ".faa"}

// JobNameFor derives a job name from a sequence file: the base name without
// its extension.
func JobNameFor(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SpecForFile builds the specification for a single input file. An empty
// jobName defaults to the file's base name.
func SpecForFile(seqFile, jobName string, ref types.TaxonID, flags types.JobFlags) (types.JobSpec, error) {
	if seqFile == "" {
		return types.JobSpec{}, fmt.Errorf("batch: no input sequence file given")
	}
	if ref.IsZero() {
		return types.JobSpec{}, fmt.Errorf("batch: no reference taxon given")
	}
	if jobName == "" {
		jobName = JobNameFor(seqFile)
	}
	if strings.ContainsAny(jobName, "/\\") {
		return types.JobSpec{}, fmt.Errorf("batch: job name %q must not contain path separators", jobName)
	}
	return types.JobSpec{SeqFile: seqFile, JobName: jobName, RefTaxon: ref, Flags: flags}, nil
}

// SpecsFromDir builds one spec per sequence file in dir, in name order. The
// optional prefix is prepended to every job name. A directory without any
// sequence file yields ErrEmptyInputSet.
func SpecsFromDir(dir, prefix string, ref types.TaxonID, flags types.JobFlags) ([]types.JobSpec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("batch: read input dir: %w", err)
	}

	var specs []types.JobSpec
	for _, e := range entries {
		if e.IsDir() || !hasSeqExt(e.Name()) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name := JobNameFor(e.Name())
		if prefix != "" {
			name = prefix + "_" + name
		}
		spec, err := SpecForFile(filepath.Join(dir, e.Name()), name, ref, flags)
		if err != nil {
			return nil, err
		}
		spec.Index = len(specs)
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyInputSet, dir)
	}
	return specs, nil
}

func hasSeqExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range seqFileExts {
		if ext == want {
			return true
		}
	}
	return false
}

// JobRunner executes one job to a terminal result. The production
// implementation is dispatch.Dispatcher.
type JobRunner interface {
	Run(ctx context.Context, spec types.JobSpec) types.JobResult
}

// Options wires a batch Runner.
type Options struct {
	Dispatcher  JobRunner
	MaxParallel int             // number of jobs in flight, values below 1 mean sequential
	RunLog      *RunLog         // optional journal
	Completed   map[string]bool // jobs to skip because a prior run finished them
}

// Runner executes job batches. One job failing never stops its siblings;
// only context cancellation ends a batch early.
type Runner struct {
	dispatcher  JobRunner
	maxParallel int
	runLog      *RunLog
	completed   map[string]bool
}

func NewRunner(opts Options) *Runner {
	workers := opts.MaxParallel
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		dispatcher:  opts.Dispatcher,
		maxParallel: workers,
		runLog:      opts.RunLog,
		completed:   opts.Completed,
	}
}

// RunAll executes every spec and returns the terminal results in submission
// order, regardless of which worker finished first. On cancellation the
// in-flight jobs still produce results; never-dispatched jobs have none, and
// the error wraps ErrBatchAborted.
func (r *Runner) RunAll(ctx context.Context, specs []types.JobSpec) ([]types.JobResult, types.Summary, error) {
	if len(specs) == 0 {
		return nil, types.Summary{}, ErrEmptyInputSet
	}

	log.Info("Batch starting", "jobs", len(specs), "maxParallel", r.maxParallel)

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make([]types.JobResult, len(specs))
		ran     = make([]bool, len(specs))
		aborted = false
	)
	sem := make(chan struct{}, r.maxParallel)

dispatching:
	for i := range specs {
		spec := specs[i]

		if r.completed[spec.JobName] {
			results[i] = types.JobResult{JobName: spec.JobName, Index: spec.Index, Status: types.StatusSkipped}
			ran[i] = true
			log.Info("Job already completed in a previous run", "job", spec.JobName)
			continue
		}

		select {
		case <-ctx.Done():
			aborted = true
			break dispatching
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, spec types.JobSpec) {
			defer wg.Done()
			defer func() { <-sem }()

			r.logEvent(EventStarted, spec.JobName, "")
			res := r.dispatcher.Run(ctx, spec)

			mu.Lock()
			results[i] = res
			ran[i] = true
			mu.Unlock()

			r.logResult(res)
		}(i, spec)
	}
	wg.Wait()

	ordered := make([]types.JobResult, 0, len(specs))
	var sum types.Summary
	for i := range specs {
		if !ran[i] {
			continue
		}
		ordered = append(ordered, results[i])
		sum.Add(results[i])
	}

	log.Info("Batch finished", "summary", sum.String(), "aborted", aborted)
	if aborted {
		return ordered, sum, fmt.Errorf("%w: %w", ErrBatchAborted, ctx.Err())
	}
	return ordered, sum, nil
}

func (r *Runner) logEvent(typ EventType, job, detail string) {
	if r.runLog == nil {
		return
	}
	if err := r.runLog.Append(typ, job, detail); err != nil {
		log.Error("Failed to append run log event", "job", job, "error", err)
	}
}

func (r *Runner) logResult(res types.JobResult) {
	switch res.Status {
	case types.StatusOK:
		r.logEvent(EventOK, res.JobName, "")
	case types.StatusSkipped:
		r.logEvent(EventSkipped, res.JobName, "")
	case types.StatusFailed:
		detail := ""
		if res.Err != nil {
			detail = res.Err.Error()
		}
		r.logEvent(EventFailed, res.JobName, detail)
	}
}
