package mount

import (
	"slices"
	"strings"
)

// DefaultFallback is the SPA document served by the root mount when the
// requested file does not exist.
const DefaultFallback = "index.html"

// Mount is a route table entry.
type Mount struct {
	Spec

	// Fallback is the file, relative to Target, served when the remainder
	// does not exist. Only the default root mount carries one.
	Fallback string

	// seq is the registration order, used to break ties.
	seq int
}

// Table resolves request paths to mounts. It is never mutated after NewTable
// returns, so lookups need no locking.
type Table struct {
	mounts []Mount
}

// Root returns the implicit default mount: "/" serving dir with an SPA
// fallback.
func Root(dir, fallback string) Mount {
	return Mount{
		Spec: Spec{
			Prefix: "/",
			Target: dir,
			Kind:   Directory,
		},
		Fallback: fallback,
	}
}

// NewTable builds a table from the default mount followed by specs in
// registration order. A spec with the same prefix as an earlier one (the
// default included) replaces it.
func NewTable(def *Mount, specs ...Spec) *Table {
	var mounts []Mount
	index := make(map[string]int)

	add := func(m Mount) {
		if i, ok := index[m.Prefix]; ok {
			mounts[i] = m
			return
		}
		index[m.Prefix] = len(mounts)
		mounts = append(mounts, m)
	}

	seq := 0
	if def != nil {
		m := *def
		m.seq = seq
		add(m)
	}
	for _, s := range specs {
		seq++
		add(Mount{Spec: s, seq: seq})
	}

	// Longest prefix first; among equal lengths the later registration wins.
	slices.SortStableFunc(mounts, func(a, b Mount) int {
		if la, lb := len(a.Prefix), len(b.Prefix); la != lb {
			return lb - la
		}
		return b.seq - a.seq
	})

	return &Table{mounts: mounts}
}

// Resolve finds the mount for urlPath and the remainder to hand to it.
// Directory remainders have no leading slash; file mounts always get "".
func (t *Table) Resolve(urlPath string) (Mount, string, bool) {
	if urlPath == "" {
		urlPath = "/"
	}
	for _, m := range t.mounts {
		if rem, ok := m.match(urlPath); ok {
			return m, rem, true
		}
	}
	return Mount{}, "", false
}

// Mounts returns the entries in match order.
func (t *Table) Mounts() []Mount {
	return slices.Clone(t.mounts)
}

func (m Mount) match(urlPath string) (string, bool) {
	if m.Kind == File {
		if m.Exact {
			return "", urlPath == m.Prefix
		}
		if m.Prefix == "/" || urlPath == m.Prefix || strings.HasPrefix(urlPath, m.Prefix+"/") {
			return "", true
		}
		return "", false
	}

	if m.Prefix == "/" {
		return strings.TrimPrefix(urlPath, "/"), true
	}
	if urlPath == m.Prefix {
		return "", true
	}
	if rest, ok := strings.CutPrefix(urlPath, m.Prefix+"/"); ok {
		return rest, true
	}
	return "", false
}
