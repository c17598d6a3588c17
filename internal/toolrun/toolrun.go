// Package toolrun is the boundary to the external bioinformatics tools. The
// orchestration layer never interprets what a tool computes; it only knows
// the closed set of tool kinds, their argument templates, and how to tell
// success from failure.
package toolrun

import (
	"context"
	"io"
	"strconv"
)

// Kind tags one of the external tool roles the pipeline drives.
type Kind string

const (
	KindSearch  Kind = "search"  // ortholog search against a reference index
	KindIndexer Kind = "indexer" // BLAST protein database construction
	KindSignalP Kind = "signalp" // signal peptide prediction
	KindTMHMM   Kind = "tmhmm"   // transmembrane helix prediction
	KindFAS     Kind = "fas"     // feature-architecture annotation
)

// Invocation is one fully-resolved tool call.
type Invocation struct {
	Kind    Kind
	Command string   // executable to run, resolved from configuration
	Args    []string
	Dir     string    // working directory, empty inherits the caller's
	Env     []string  // extra KEY=VALUE entries appended to the environment
	Stdout  io.Writer // optional sink for tools that report on stdout
}

// Runner executes tool invocations. The process-backed implementation is
// ExecRunner; tests substitute their own.
type Runner interface {
	Run(ctx context.Context, inv Invocation) error
}

// Search queries one reference taxon's index with the job's input sequences.
func Search(command, queryFile, indexBase, outFile string, cpus int) Invocation {
	args := []string{"-query", queryFile, "-db", indexBase, "-out", outFile}
	if cpus > 0 {
		args = append(args, "-num_threads", strconv.Itoa(cpus))
	}
	return Invocation{Kind: KindSearch, Command: command, Args: args}
}

// Indexer builds the protein BLAST database volumes at indexBase.
func Indexer(command, fastaFile, indexBase string) Invocation {
	return Invocation{
		Kind:    KindIndexer,
		Command: command,
		Args:    []string{"-dbtype", "prot", "-in", fastaFile, "-out", indexBase},
	}
}

// FAS annotates fastaFile and writes <basename>.json into outDir.
func FAS(command, fastaFile, outDir string, cpus int, force bool) Invocation {
	args := []string{"-i", fastaFile, "-o", outDir}
	if cpus > 0 {
		args = append(args, "--cpus", strconv.Itoa(cpus))
	}
	if force {
		args = append(args, "--force")
	}
	return Invocation{Kind: KindFAS, Command: command, Args: args}
}

// SignalP predicts signal peptides, writing result files at outPrefix.
func SignalP(command, fastaFile, outPrefix string) Invocation {
	return Invocation{
		Kind:    KindSignalP,
		Command: command,
		Args:    []string{"-fasta", fastaFile, "-prefix", outPrefix},
	}
}

// TMHMM predicts transmembrane helices. The tool reports on stdout, so the
// caller supplies the sink.
func TMHMM(command, fastaFile string, out io.Writer) Invocation {
	return Invocation{
		Kind:    KindTMHMM,
		Command: command,
		Args:    []string{fastaFile},
		Stdout:  out,
	}
}
