// Package lockfile implements .resumetl.lock, which remembers for every
// translated language the checksum of the source content and instruction it
// was produced from. With --changed-only, languages whose checksum still
// matches are not sent to the AI provider again.
//
// The lock file is stored in the project root next to the content document.
package lockfile

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// LockFileName is the default lock file name.
const LockFileName = ".resumetl.lock"

// Version is the lock file format version.
const Version = 1

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Record describes the last successful translation of one language.
type Record struct {
	Checksum   string    `yaml:"checksum"`
	Model      string    `yaml:"model,omitempty"`
	Translated time.Time `yaml:"translated"`
}

// LockFile maps a content document to the records of its languages.
type LockFile struct {
	Version   int                          `yaml:"version"`
	Documents map[string]map[string]Record `yaml:"documents"` // document -> lang -> record

	mu   sync.Mutex `yaml:"-"`
	path string     `yaml:"-"`
}

// ---------------------------------------------------------------------------
// Loading and saving
// ---------------------------------------------------------------------------

// Load reads the lock file in dir. A missing file yields an empty lock.
func Load(dir string) (*LockFile, error) {
	path := filepath.Join(dir, LockFileName)
	lf := &LockFile{Version: Version, path: path}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, lf); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if lf.Version > Version {
			return nil, fmt.Errorf("%s: unsupported version %d", path, lf.Version)
		}
	}

	if lf.Documents == nil {
		lf.Documents = make(map[string]map[string]Record)
	}
	return lf, nil
}

// Save writes the lock file back to where it was loaded from.
func (lf *LockFile) Save() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.path == "" {
		return fmt.Errorf("lock file path not set")
	}

	lf.Version = Version
	data, err := yaml.Marshal(lf)
	if err != nil {
		return fmt.Errorf("marshaling lock file: %w", err)
	}
	if err := os.WriteFile(lf.path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", lf.path, err)
	}
	return nil
}

// Path returns the file the lock is read from and saved to.
func (lf *LockFile) Path() string {
	return lf.path
}

// ---------------------------------------------------------------------------
// Checksums
// ---------------------------------------------------------------------------

// Hash computes the MD5 hex digest of a string.
func Hash(s string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(s)))
}

// DocumentKey builds the key for the content document at path, relative to
// the project root when possible, e.g. "data.json".
func DocumentKey(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil {
		path = rel
	}
	return filepath.ToSlash(path)
}

// Content builds the string hashed for one language: the serialized source
// tree and the instruction, so editing either triggers re-translation.
func Content(source []byte, instruction string) string {
	return string(source) + "\x00" + instruction
}

// Unchanged reports whether lang of doc was last translated from content.
func (lf *LockFile) Unchanged(doc, lang, content string) bool {
	rec, ok := lf.Lookup(doc, lang)
	return ok && rec.Checksum == Hash(content)
}

// Lookup returns the record for lang of doc.
func (lf *LockFile) Lookup(doc, lang string) (Record, bool) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	rec, ok := lf.Documents[doc][lang]
	return rec, ok
}

// Record stores a successful translation of lang produced from content.
func (lf *LockFile) Record(doc, lang, content, model string, at time.Time) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.Documents[doc] == nil {
		lf.Documents[doc] = make(map[string]Record)
	}
	lf.Documents[doc][lang] = Record{
		Checksum:   Hash(content),
		Model:      model,
		Translated: at.UTC().Truncate(time.Second),
	}
}

// Prune drops the records of doc whose language is not in keep and returns
// the dropped languages, sorted.
func (lf *LockFile) Prune(doc string, keep []string) []string {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	langs := lf.Documents[doc]
	if langs == nil {
		return nil
	}

	kept := make(map[string]bool, len(keep))
	for _, l := range keep {
		kept[l] = true
	}

	var dropped []string
	for l := range langs {
		if !kept[l] {
			delete(langs, l)
			dropped = append(dropped, l)
		}
	}
	sort.Strings(dropped)
	return dropped
}

// ---------------------------------------------------------------------------
// Summary
// ---------------------------------------------------------------------------

// Summary returns a one-line description such as
// "data.json: ar, en, ja, ko", or "empty".
func (lf *LockFile) Summary() string {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	docs := make([]string, 0, len(lf.Documents))
	for d, langs := range lf.Documents {
		if len(langs) > 0 {
			docs = append(docs, d)
		}
	}
	if len(docs) == 0 {
		return "empty"
	}
	sort.Strings(docs)

	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		langs := make([]string, 0, len(lf.Documents[d]))
		for l := range lf.Documents[d] {
			langs = append(langs, l)
		}
		sort.Strings(langs)
		parts = append(parts, d+": "+strings.Join(langs, ", "))
	}
	return strings.Join(parts, "; ")
}
