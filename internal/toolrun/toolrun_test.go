package toolrun

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunnerSuccess(t *testing.T) {
	var out bytes.Buffer
	inv := Invocation{
		Kind:    KindSearch,
		Command: "sh",
		Args:    []string{"-c", "echo hit1"},
		Stdout:  &out,
	}

	err := ExecRunner{}.Run(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, "hit1\n", out.String())
}

func TestExecRunnerCapturesExitCodeAndStderr(t *testing.T) {
	inv := Invocation{
		Kind:    KindIndexer,
		Command: "sh",
		Args:    []string{"-c", "echo 'bad database' >&2; exit 3"},
	}

	err := ExecRunner{}.Run(context.Background(), inv)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExternalTool)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, KindIndexer, toolErr.Tool)
	assert.Equal(t, 3, toolErr.ExitCode)
	assert.Equal(t, "bad database", toolErr.Stderr)
	assert.Contains(t, toolErr.Error(), "exited with code 3")
}

func TestExecRunnerMissingCommand(t *testing.T) {
	inv := Invocation{
		Kind:    KindFAS,
		Command: "definitely-not-installed-tool",
	}

	err := ExecRunner{}.Run(context.Background(), inv)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExternalTool)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, -1, toolErr.ExitCode)
}

func TestExecRunnerCancellationKillsProcess(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	inv := Invocation{
		Kind:    KindSearch,
		Command: "sh",
		Args:    []string{"-c", "sleep 10"},
	}

	start := time.Now()
	err := ExecRunner{}.Run(ctx, inv)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrExternalTool)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecRunnerWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	inv := Invocation{
		Kind:    KindSearch,
		Command: "sh",
		Args:    []string{"-c", "pwd"},
		Dir:     dir,
		Stdout:  &out,
	}

	require.NoError(t, ExecRunner{}.Run(context.Background(), inv))
	assert.Equal(t, dir, strings.TrimSpace(out.String()))
}

func TestTailBufferKeepsOnlyTrailingBytes(t *testing.T) {
	b := &tailBuffer{limit: 8}
	_, err := b.Write([]byte("0123456789abcdef"))
	require.NoError(t, err)
	assert.Equal(t, "...89abcdef", b.String())

	small := &tailBuffer{limit: 64}
	_, err = small.Write([]byte("  short  \n"))
	require.NoError(t, err)
	assert.Equal(t, "short", small.String())
}

func TestSearchTemplate(t *testing.T) {
	inv := Search("blastp", "query.fa", "/lib/blast_dir/HUMAN@9606@230801/HUMAN@9606@230801", "out.tsv", 4)
	assert.Equal(t, KindSearch, inv.Kind)
	assert.Equal(t, "blastp", inv.Command)
	assert.Equal(t, []string{
		"-query", "query.fa",
		"-db", "/lib/blast_dir/HUMAN@9606@230801/HUMAN@9606@230801",
		"-out", "out.tsv",
		"-num_threads", "4",
	}, inv.Args)

	noCPU := Search("blastp", "q.fa", "db", "o", 0)
	assert.NotContains(t, noCPU.Args, "-num_threads")
}

func TestIndexerTemplate(t *testing.T) {
	inv := Indexer("makeblastdb", "genome.fa", "/lib/blast_dir/X@1@v/X@1@v")
	assert.Equal(t, []string{"-dbtype", "prot", "-in", "genome.fa", "-out", "/lib/blast_dir/X@1@v/X@1@v"}, inv.Args)
}

func TestFASTemplate(t *testing.T) {
	inv := FAS("fas.doAnno", "genome.fa", "/lib/weight_dir", 2, true)
	assert.Equal(t, []string{"-i", "genome.fa", "-o", "/lib/weight_dir", "--cpus", "2", "--force"}, inv.Args)
}

func TestToolErrorUnwrapsToSentinel(t *testing.T) {
	err := &ToolError{Tool: KindTMHMM, Command: "tmhmm", ExitCode: 1}
	assert.True(t, errors.Is(err, ErrExternalTool))
}
