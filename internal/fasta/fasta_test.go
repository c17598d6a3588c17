package fasta

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanSplitsHeaderAtFirstWord(t *testing.T) {
	in := ">sp|P12345|TEST_HUMAN Test protein OS=Homo sapiens\nMKT\nLLV\n>second\nACDE\n"

	recs, err := ReadAll(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "sp|P12345|TEST_HUMAN", recs[0].ID)
	assert.Equal(t, "Test protein OS=Homo sapiens", recs[0].Desc)
	assert.Equal(t, "MKTLLV", string(recs[0].Seq))

	assert.Equal(t, "second", recs[1].ID)
	assert.Equal(t, "", recs[1].Desc)
	assert.Equal(t, "ACDE", string(recs[1].Seq))
}

func TestScanRejectsSequenceBeforeHeader(t *testing.T) {
	_, err := ReadAll(strings.NewReader("MKTLLV\n>late\nACDE\n"))
	assert.Error(t, err)
}

func TestScanSkipsBlankLines(t *testing.T) {
	recs, err := ReadAll(strings.NewReader(">a\n\nMK\n\nTL\n"))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "MKTL", string(recs[0].Seq))
}

func TestCleanRewritesPipesInIDs(t *testing.T) {
	recs := []Record{{ID: "tr|Q99999|X", Seq: []byte("MKT")}}

	stats, err := Clean(recs, PolicyStrict)
	require.NoError(t, err)
	assert.Equal(t, "tr_Q99999_X", recs[0].ID)
	assert.Equal(t, 1, stats.PipesRewritten)
}

func TestCleanStripsSingleTrailingStop(t *testing.T) {
	recs := []Record{{ID: "a", Seq: []byte("MKTLLV*")}}

	stats, err := Clean(recs, PolicyStrict)
	require.NoError(t, err)
	assert.Equal(t, "MKTLLV", string(recs[0].Seq))
	assert.Equal(t, 1, stats.StopsStripped)
}

func TestCleanStrictRejectsSpecialCharacters(t *testing.T) {
	recs := []Record{{ID: "bad", Seq: []byte("MKT.LV")}}

	_, err := Clean(recs, PolicyStrict)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSequence)
	assert.Contains(t, err.Error(), "bad")
}

func TestCleanReplacePolicy(t *testing.T) {
	recs := []Record{{ID: "a", Seq: []byte("MK-T.L9V")}}

	stats, err := Clean(recs, PolicyReplace)
	require.NoError(t, err)
	assert.Equal(t, "MKXTXLXV", string(recs[0].Seq))
	assert.Equal(t, 3, stats.ResiduesFixed)
}

func TestCleanDeletePolicy(t *testing.T) {
	recs := []Record{{ID: "a", Seq: []byte("MK-T.L9V")}}

	stats, err := Clean(recs, PolicyDelete)
	require.NoError(t, err)
	assert.Equal(t, "MKTLV", string(recs[0].Seq))
	assert.Equal(t, 3, stats.ResiduesFixed)
}

func TestCleanRejectsDuplicateIDs(t *testing.T) {
	recs := []Record{
		{ID: "same", Seq: []byte("MK")},
		{ID: "same", Seq: []byte("TL")},
	}

	_, err := Clean(recs, PolicyStrict)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestCleanRejectsEmptyID(t *testing.T) {
	recs := []Record{{ID: "", Seq: []byte("MK")}}

	_, err := Clean(recs, PolicyStrict)
	assert.ErrorIs(t, err, ErrEmptyID)
}

func TestWriteWrapsAtSixtyColumns(t *testing.T) {
	long := strings.Repeat("MKTLLVAAGF", 13) // 130 residues
	var sb strings.Builder
	err := Write(&sb, []Record{{ID: "long", Seq: []byte(long)}})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.True(t, strings.HasPrefix(lines[0], ">long"))
	assert.Len(t, lines[1], 60)
	assert.Len(t, lines[2], 60)
	assert.Len(t, lines[3], 10)
}

func TestWriteFileReadCuratedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cur.fa")

	in := []Record{
		{ID: "p1", Seq: []byte("MKTLLVAAGF")},
		{ID: "p2", Seq: []byte("ACDEFGHIKL")},
	}
	require.NoError(t, WriteFile(path, in))

	out, err := ReadCurated(path)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "p1", out[0].ID)
	assert.Equal(t, "MKTLLVAAGF", strings.ToUpper(string(out[0].Seq)))
	assert.Equal(t, "p2", out[1].ID)
	assert.Equal(t, "ACDEFGHIKL", strings.ToUpper(string(out[1].Seq)))
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.fa"))
	assert.True(t, os.IsNotExist(err))
}
