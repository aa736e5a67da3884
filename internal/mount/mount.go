// Package mount parses prefix:target mount specs and resolves request paths
// against them.
package mount

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/vango-dev/devserve/internal/errors"
)

// ReservedPrefix is owned by the server itself (reload socket, metrics).
const ReservedPrefix = "/_devserve"

// Kind is what a mount serves.
type Kind int

const (
	// Directory serves the tree rooted at the target.
	Directory Kind = iota
	// File serves the single target file for every matching request.
	File
)

// String returns the kind name.
func (k Kind) String() string {
	if k == File {
		return "file"
	}
	return "dir"
}

// Spec is one parsed mount. It is immutable once parsed.
type Spec struct {
	// Prefix is the URL path prefix. Directory prefixes never end in "/"
	// (except the root); file prefixes keep the trailing "/" that marks Exact.
	Prefix string

	// Target is the filesystem path, cleaned. It does not have to exist.
	Target string

	Kind Kind

	// Exact is set for file mounts whose prefix ends in "/": only that exact
	// path matches. Other file mounts also match any sub-path of the prefix,
	// and the sub-path is discarded.
	Exact bool
}

// Parse parses a single prefix:target token.
func Parse(token string) (Spec, error) {
	prefix, target, ok := strings.Cut(token, ":")
	if !ok {
		return Spec{}, errors.New("E102").WithDetailf("%q has no ':' separator", token)
	}
	if prefix == "" {
		return Spec{}, errors.New("E102").WithDetailf("%q has an empty prefix", token)
	}
	if !strings.HasPrefix(prefix, "/") {
		return Spec{}, errors.New("E102").WithDetailf("prefix %q must start with '/'", prefix)
	}
	if target == "" {
		return Spec{}, errors.New("E103").WithDetailf("%q", token)
	}

	spec := Spec{
		Target: filepath.Clean(target),
		Kind:   Directory,
	}
	if strings.HasSuffix(target, ".html") {
		spec.Kind = File
	}

	switch spec.Kind {
	case File:
		spec.Exact = len(prefix) > 1 && strings.HasSuffix(prefix, "/")
		spec.Prefix = cleanPrefix(prefix)
		if spec.Exact && spec.Prefix != "/" {
			spec.Prefix += "/"
		}
	default:
		spec.Prefix = cleanPrefix(prefix)
	}

	if spec.Prefix == ReservedPrefix || strings.HasPrefix(spec.Prefix, ReservedPrefix+"/") {
		return Spec{}, errors.New("E104").WithDetailf("%q", prefix)
	}

	return spec, nil
}

// ParseAll parses every token in order. The first bad token stops parsing.
func ParseAll(tokens []string) ([]Spec, error) {
	specs := make([]Spec, 0, len(tokens))
	for _, tok := range tokens {
		spec, err := Parse(tok)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// String renders the spec back in prefix:target form.
func (s Spec) String() string {
	return s.Prefix + ":" + s.Target
}

// cleanPrefix cleans a URL prefix and drops any trailing slash.
func cleanPrefix(prefix string) string {
	clean := path.Clean(prefix)
	if clean == "." || clean == "" {
		return "/"
	}
	return clean
}
