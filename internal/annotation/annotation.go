// Package annotation tracks which annotation tools take part in a job's
// annotation phase. The registry fixes the execution order; an exclusion
// manifest switches individual tools off without reordering the rest.
package annotation

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Registry is an ordered set of annotation tool names. Insertion order is
// the execution order and survives removals.
type Registry struct {
	order []string
	seen  map[string]struct{}
}

// NewRegistry builds a registry from names, dropping duplicates and empty
// entries while keeping first-occurrence order.
func NewRegistry(names ...string) *Registry {
	r := &Registry{seen: make(map[string]struct{}, len(names))}
	for _, name := range names {
		r.Add(name)
	}
	return r
}

// Add appends a tool. It reports false for an empty name or one already
// registered, in which case the registry is unchanged.
func (r *Registry) Add(name string) bool {
	if name == "" {
		return false
	}
	if _, ok := r.seen[name]; ok {
		return false
	}
	r.seen[name] = struct{}{}
	r.order = append(r.order, name)
	return true
}

// Remove drops a tool, preserving the order of the remaining ones. It
// reports whether the tool was registered.
func (r *Registry) Remove(name string) bool {
	if _, ok := r.seen[name]; !ok {
		return false
	}
	delete(r.seen, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Has reports whether name is registered. Matching is exact and
// case-sensitive.
func (r *Registry) Has(name string) bool {
	_, ok := r.seen[name]
	return ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.order) }

// Names returns all tool names in execution order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Active returns the tools that are not excluded, in execution order.
func (r *Registry) Active(excluded map[string]bool) []string {
	out := make([]string, 0, len(r.order))
	for _, name := range r.order {
		if !excluded[name] {
			out = append(out, name)
		}
	}
	return out
}

// ParseExclusions reads an exclusion manifest: one exact, case-sensitive
// tool name per line. Blank lines and '#' comments are ignored.
func ParseExclusions(r io.Reader) (map[string]bool, error) {
	excluded := make(map[string]bool)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		excluded[line] = true
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read exclusion manifest: %w", err)
	}
	return excluded, nil
}

// LoadExclusions reads the manifest at path. An empty path means no
// exclusions.
func LoadExclusions(path string) (map[string]bool, error) {
	if path == "" {
		return map[string]bool{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open exclusion manifest: %w", err)
	}
	defer f.Close()
	return ParseExclusions(f)
}
