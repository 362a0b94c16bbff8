// Package keyset compares the structure of two content trees by their full
// key paths. A translation must keep every path of its source; additional
// paths are tolerated and only reported.
package keyset

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cruz-resume/resumetl/document"
)

// ErrStructuralMismatch is matched by every *MismatchError.
var ErrStructuralMismatch = errors.New("structural mismatch")

// maxListed caps how many paths an error message spells out.
const maxListed = 10

// Set is a set of key paths such as "hero.title" or "jobs[2].label".
type Set map[string]struct{}

// Collect walks node and returns every mapping key path and sequence element
// path beneath it.
func Collect(node *document.Node) Set {
	s := make(Set)
	if node == nil {
		return s
	}
	node.Walk(func(path string, _ *document.Node) bool {
		s[path] = struct{}{}
		return true
	})
	return s
}

// Has reports whether path is in the set.
func (s Set) Has(path string) bool {
	_, ok := s[path]
	return ok
}

// Minus returns the sorted paths present in s but not in other.
func (s Set) Minus(other Set) []string {
	var out []string
	for p := range s {
		if !other.Has(p) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Sorted returns all paths in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Diff is the result of comparing a translation against its source.
type Diff struct {
	// Missing are source paths absent from the translation.
	Missing []string
	// Extra are translation paths absent from the source.
	Extra []string
}

// OK reports whether nothing is missing.
func (d Diff) OK() bool {
	return len(d.Missing) == 0
}

// Compare computes the key-set difference between source and translated.
func Compare(source, translated *document.Node) Diff {
	src := Collect(source)
	dst := Collect(translated)
	return Diff{
		Missing: src.Minus(dst),
		Extra:   dst.Minus(src),
	}
}

// MismatchError names the source paths a translation dropped.
type MismatchError struct {
	Missing []string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("missing keys in translation (%d): %s", len(e.Missing), Summarize(e.Missing))
}

// Is makes errors.Is(err, ErrStructuralMismatch) hold.
func (e *MismatchError) Is(target error) bool {
	return target == ErrStructuralMismatch
}

// Validate compares translated against source. Missing paths fail with a
// *MismatchError; extra paths are returned in the Diff without error.
func Validate(source, translated *document.Node) (Diff, error) {
	d := Compare(source, translated)
	if !d.OK() {
		return d, &MismatchError{Missing: d.Missing}
	}
	return d, nil
}

// Summarize joins paths for display, eliding after the first few.
func Summarize(paths []string) string {
	if len(paths) <= maxListed {
		return strings.Join(paths, ", ")
	}
	return fmt.Sprintf("%s, ... (+%d more)", strings.Join(paths[:maxListed], ", "), len(paths)-maxListed)
}
