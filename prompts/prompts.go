// Package prompts resolves the localization instruction sent with each
// translation request.
//
// Resolution order for a language code:
//  1. <Dir>/<lang>.txt, used verbatim when present
//  2. the built-in instruction for that language
//  3. the built-in English instruction
//
// A missing override is expected and never an error.
package prompts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Source tells where a resolved instruction came from.
type Source string

const (
	SourceOverride Source = "override"
	SourceBuiltin  Source = "builtin"
	SourceFallback Source = "fallback"
)

// Resolver looks up instructions, preferring override files in Dir.
type Resolver struct {
	// Dir holds optional <lang>.txt override files. Empty disables overrides.
	Dir string
}

// NewResolver returns a Resolver reading overrides from dir.
func NewResolver(dir string) *Resolver {
	return &Resolver{Dir: dir}
}

// Resolve returns the instruction text for lang.
func (r *Resolver) Resolve(lang string) string {
	text, _ := r.Lookup(lang)
	return text
}

// Lookup returns the instruction text for lang and where it came from.
func (r *Resolver) Lookup(lang string) (string, Source) {
	if path := r.OverridePath(lang); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			return string(data), SourceOverride
		}
	}
	return Builtin(lang)
}

// OverridePath returns the override file path for lang, or "" when the
// resolver has no directory or lang is not a plain file name.
func (r *Resolver) OverridePath(lang string) string {
	if r == nil || r.Dir == "" || lang == "" || lang != filepath.Base(lang) {
		return ""
	}
	return filepath.Join(r.Dir, lang+".txt")
}

// Builtin returns the built-in instruction for lang, falling back to the
// English one for unrecognized codes.
func Builtin(lang string) (string, Source) {
	all := builtinPrompts()
	if p, ok := all[lang]; ok {
		return p, SourceBuiltin
	}
	return all[FallbackLang], SourceFallback
}

// BuiltinLanguages returns the language codes with a built-in instruction.
func BuiltinLanguages() []string {
	all := builtinPrompts()
	langs := make([]string, 0, len(all))
	for k := range all {
		langs = append(langs, k)
	}
	sort.Strings(langs)
	return langs
}

// WriteDefaults writes every built-in instruction to dir as <lang>.txt so it
// can be edited. Existing files are kept unless overwrite is set. It returns
// the paths written.
func WriteDefaults(dir string, overwrite bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating prompts directory: %w", err)
	}

	r := &Resolver{Dir: dir}
	var written []string
	for _, lang := range BuiltinLanguages() {
		path := r.OverridePath(lang)
		if !overwrite {
			if _, err := os.Stat(path); err == nil {
				continue
			} else if !errors.Is(err, fs.ErrNotExist) {
				return written, fmt.Errorf("checking %s: %w", path, err)
			}
		}
		text, _ := Builtin(lang)
		if err := os.WriteFile(path, []byte(text), 0644); err != nil {
			return written, fmt.Errorf("writing %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}
