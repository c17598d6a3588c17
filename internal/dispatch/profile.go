package dispatch

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/trvinh/fDOG/internal/fasta"
	"github.com/trvinh/fDOG/pkg/types"
)

// writeProfile derives the job's phylogenetic profile table from the search
// output. Result headers carry pipe-separated fields, group, taxon key and
// gene ID; the taxon key yields the ncbi column. Headers that do not follow
// the convention still produce a row, with the ncbi column left empty.
func writeProfile(path, jobName, extendedFasta string) error {
	recs, err := fasta.ReadFile(extendedFasta)
	if err != nil {
		return fmt.Errorf("read search output: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "geneID\tncbiID\torthoID")
	for _, rec := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\n", jobName, ncbiColumn(rec.ID), rec.ID)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write profile: %w", err)
	}
	return f.Close()
}

func ncbiColumn(orthoID string) string {
	fields := strings.Split(orthoID, "|")
	if len(fields) < 2 {
		return ""
	}
	id, err := types.ParseTaxonID(fields[1])
	if err != nil {
		return ""
	}
	return "ncbi" + strconv.Itoa(id.TaxID)
}
