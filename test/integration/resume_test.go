// ============================================================================
// fDOG batch resume tests
// ============================================================================
//
// Package: test/integration
// File: resume_test.go
//
// A batch survives a failing tool: finished jobs stay finished, the failed
// job leaves no partial output, and a re-run against the same journal skips
// everything that already completed. The search stub here crashes for one
// specific input file, is then "fixed", and the batch is resumed.
//
// TestBatchResumeAfterToolFailure:
//   1. Run alpha/beta/gamma with a search tool that crashes on beta
//   2. Verify two results OK, beta failed with the tool's exit code
//   3. Fix the tool, reopen the journal, resume
//   4. Only beta runs; alpha and gamma are skipped from the journal
//
// ============================================================================

package integration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trvinh/fDOG/internal/batch"
	"github.com/trvinh/fDOG/internal/library"
	"github.com/trvinh/fDOG/internal/toolrun"
	"github.com/trvinh/fDOG/pkg/types"
)

// failingSearchScript behaves like searchScript except that it crashes for
// the input file beta.fa.
const failingSearchScript = `#!/bin/sh
query=""
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    -query) query="$2"; shift 2 ;;
    -out) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
case "$(basename "$query")" in
  beta.fa) echo "simulated search tool crash" >&2; exit 2 ;;
esac
name=$(basename "$query")
name=${name%.*}
{
  echo ">${name}|REFKEY|${name}_p1|1"
  echo "MKTAYIAKQR"
} > "$out"
`

func TestBatchResumeAfterToolFailure(t *testing.T) {
	root := t.TempDir()
	cfg := stubConfig(t, t.TempDir())

	store, err := library.Open(root)
	require.NoError(t, err)
	ref := seedReference(t, store, cfg, t.TempDir())

	inputDir := t.TempDir()
	for _, name := range []string{"alpha.fa", "beta.fa", "gamma.fa"} {
		require.NoError(t, os.WriteFile(filepath.Join(inputDir, name),
			[]byte(">q1\nMKTAYIAKQR\n"), 0o644))
	}

	specs, err := batch.SpecsFromDir(inputDir, "", ref, types.JobFlags{CPUs: 1})
	require.NoError(t, err)
	require.Len(t, specs, 3)

	outDir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.MkdirAll(outDir, 0o755))
	logPath := filepath.Join(outDir, "fdog.runlog")
	d := newDispatcher(store, cfg, outDir)

	// First run: the search tool crashes on beta.
	writeScript(t, cfg.Tools.Search, strings.ReplaceAll(failingSearchScript, "REFKEY", refKey))

	rl, prior, err := batch.OpenRunLog(logPath)
	require.NoError(t, err)
	require.Empty(t, prior)

	runner := batch.NewRunner(batch.Options{Dispatcher: d, MaxParallel: 1, RunLog: rl})
	results, sum, err := runner.RunAll(context.Background(), specs)
	require.NoError(t, err)
	require.NoError(t, rl.Close())

	require.Len(t, results, 3)
	assert.Equal(t, types.Summary{OK: 2, Failed: 1}, sum)
	assert.Equal(t, types.StatusOK, results[0].Status)
	assert.Equal(t, types.StatusFailed, results[1].Status)
	assert.Equal(t, types.StatusOK, results[2].Status)

	var toolErr *toolrun.ToolError
	require.ErrorAs(t, results[1].Err, &toolErr)
	assert.Equal(t, 2, toolErr.ExitCode)
	assert.Contains(t, toolErr.Stderr, "simulated search tool crash")

	// The failed job left nothing behind; its siblings installed fully.
	assert.NoDirExists(t, filepath.Join(outDir, "beta"))
	assert.FileExists(t, filepath.Join(outDir, "alpha", "alpha.extended.fa"))
	assert.FileExists(t, filepath.Join(outDir, "gamma", "gamma.extended.fa"))

	// Fix the tool and resume from the journal.
	writeScript(t, cfg.Tools.Search, strings.ReplaceAll(searchScript, "REFKEY", refKey))

	rl2, prior2, err := batch.OpenRunLog(logPath)
	require.NoError(t, err)
	require.Len(t, prior2, 6) // started+ok, started+failed, started+ok

	completed := batch.CompletedJobs(prior2)
	assert.Equal(t, map[string]bool{"alpha": true, "gamma": true}, completed)

	runner = batch.NewRunner(batch.Options{
		Dispatcher:  d,
		MaxParallel: 1,
		RunLog:      rl2,
		Completed:   completed,
	})
	results, sum, err = runner.RunAll(context.Background(), specs)
	require.NoError(t, err)
	require.NoError(t, rl2.Close())

	require.Len(t, results, 3)
	assert.Equal(t, types.Summary{OK: 1, Skipped: 2}, sum)
	assert.Equal(t, types.StatusSkipped, results[0].Status)
	assert.Equal(t, types.StatusOK, results[1].Status)
	assert.Equal(t, types.StatusSkipped, results[2].Status)
	assert.FileExists(t, filepath.Join(outDir, "beta", "beta.extended.fa"))
	assert.FileExists(t, filepath.Join(outDir, "beta", "beta.phyloprofile"))

	// After the resumed run the journal accounts for every job.
	events, err := batch.ReplayRunLog(logPath)
	require.NoError(t, err)
	assert.Len(t, events, 8)
	assert.Equal(t, map[string]bool{"alpha": true, "beta": true, "gamma": true},
		batch.CompletedJobs(events))
}

func TestBatchJournalSurvivesTornWrite(t *testing.T) {
	root := t.TempDir()
	cfg := stubConfig(t, t.TempDir())

	store, err := library.Open(root)
	require.NoError(t, err)
	ref := seedReference(t, store, cfg, t.TempDir())

	inputDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(inputDir, "alpha.fa"),
		[]byte(">q1\nMKTAYIAKQR\n"), 0o644))

	specs, err := batch.SpecsFromDir(inputDir, "", ref, types.JobFlags{CPUs: 1})
	require.NoError(t, err)

	outDir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.MkdirAll(outDir, 0o755))
	logPath := filepath.Join(outDir, "fdog.runlog")

	rl, _, err := batch.OpenRunLog(logPath)
	require.NoError(t, err)
	runner := batch.NewRunner(batch.Options{Dispatcher: newDispatcher(store, cfg, outDir), RunLog: rl})
	_, sum, err := runner.RunAll(context.Background(), specs)
	require.NoError(t, err)
	require.Equal(t, types.Summary{OK: 1}, sum)
	require.NoError(t, rl.Close())

	// Simulate a crash mid-append: garbage without a trailing newline.
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"seq":3,"type":"STAR`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Replay drops the torn tail and still reports the finished job.
	events, err := batch.ReplayRunLog(logPath)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, map[string]bool{"alpha": true}, batch.CompletedJobs(events))

	// Reopening for a resumed run keeps appending after the repaired tail.
	rl2, prior, err := batch.OpenRunLog(logPath)
	require.NoError(t, err)
	require.Len(t, prior, 2)
	require.NoError(t, rl2.Append(batch.EventStarted, "beta", ""))
	require.NoError(t, rl2.Close())

	events, err = batch.ReplayRunLog(logPath)
	require.NoError(t, err)
	assert.Len(t, events, 3)
	assert.Equal(t, uint64(3), events[2].Seq)
}
