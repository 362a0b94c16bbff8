// Package document implements reading and writing of the multilingual
// content document.
//
// The expected file format is a JSON object keyed by language code, each
// value being an arbitrarily nested content tree:
//
//	{
//	  "zh-TW": { "hero": { "title": "你好" }, "skills": ["Go", "AI"] },
//	  "en":    { "hero": { "title": "Hello" }, "skills": ["Go", "AI"] }
//	}
//
// One key, the source language, is authoritative; all others are derived
// translations. Key order is preserved on round-trip.
package document

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

var (
	// ErrNotFound is returned when the document file does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrMalformed is returned when the document cannot be parsed as a
	// language-keyed JSON object.
	ErrMalformed = errors.New("malformed document")
	// ErrMissingSource is returned when the source language key is absent.
	// It also matches ErrMalformed.
	ErrMissingSource = fmt.Errorf("%w: source language missing", ErrMalformed)
)

// Document is an ordered mapping from language code to content tree.
type Document struct {
	root *Node
}

// New returns an empty document.
func New() *Document {
	return &Document{root: NewMapping()}
}

// Load reads and parses the document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse parses document JSON.
func Parse(data []byte) (*Document, error) {
	root, err := ParseNode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if root.Kind != KindMapping {
		return nil, fmt.Errorf("%w: top level must be an object keyed by language, got %s", ErrMalformed, root.Kind)
	}
	return &Document{root: root}, nil
}

// Languages returns the language codes in document order.
func (d *Document) Languages() []string {
	return d.root.Keys()
}

// Get returns the content tree for lang.
func (d *Document) Get(lang string) (*Node, bool) {
	return d.root.Field(lang)
}

// Set replaces (or appends) the content tree for lang.
func (d *Document) Set(lang string, tree *Node) {
	d.root.Set(lang, tree)
}

// Source returns the content tree of the authoritative source language.
func (d *Document) Source(lang string) (*Node, error) {
	tree, ok := d.Get(lang)
	if !ok {
		return nil, fmt.Errorf("%w: %q not found", ErrMissingSource, lang)
	}
	return tree, nil
}

// Marshal renders the document with 2-space indentation, literal non-ASCII
// text and a trailing newline.
func (d *Document) Marshal() ([]byte, error) {
	data, err := d.root.MarshalIndent("", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
