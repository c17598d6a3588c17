package annotation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryKeepsInsertionOrder(t *testing.T) {
	r := NewRegistry("signalp", "tmhmm", "fas")
	assert.Equal(t, []string{"signalp", "tmhmm", "fas"}, r.Names())
	assert.Equal(t, 3, r.Len())
}

func TestRegistryRejectsDuplicatesAndEmpty(t *testing.T) {
	r := NewRegistry("fas")
	assert.False(t, r.Add("fas"))
	assert.False(t, r.Add(""))
	assert.True(t, r.Add("tmhmm"))
	assert.Equal(t, []string{"fas", "tmhmm"}, r.Names())
}

func TestRegistryRemovePreservesOrder(t *testing.T) {
	r := NewRegistry("signalp", "tmhmm", "fas")
	assert.True(t, r.Remove("tmhmm"))
	assert.False(t, r.Remove("tmhmm"))
	assert.Equal(t, []string{"signalp", "fas"}, r.Names())
	assert.False(t, r.Has("tmhmm"))
	assert.True(t, r.Has("fas"))
}

func TestRegistryMatchingIsCaseSensitive(t *testing.T) {
	r := NewRegistry("SignalP")
	assert.False(t, r.Has("signalp"))
	assert.True(t, r.Add("signalp"))
}

func TestActiveFiltersExcludedTools(t *testing.T) {
	r := NewRegistry("signalp", "tmhmm", "fas")
	active := r.Active(map[string]bool{"tmhmm": true})
	assert.Equal(t, []string{"signalp", "fas"}, active)
}

func TestParseExclusions(t *testing.T) {
	manifest := strings.NewReader("# tools to skip\n\nsignalp\n  tmhmm  \n# fas stays active\n")
	excluded, err := ParseExclusions(manifest)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"signalp": true, "tmhmm": true}, excluded)
}

func TestLoadExclusions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exclude.txt")
	require.NoError(t, os.WriteFile(path, []byte("fas\n"), 0o644))

	excluded, err := LoadExclusions(path)
	require.NoError(t, err)
	assert.True(t, excluded["fas"])

	empty, err := LoadExclusions("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = LoadExclusions(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
