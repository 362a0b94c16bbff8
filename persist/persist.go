// Package persist writes the content document back to disk, keeping a
// timestamped byte-for-byte backup of the previous file.
//
// Backups are named <stem>_YYYYMMDD_HHMMSS<ext> inside the backup directory
// and are never rotated or deleted.
package persist

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cruz-resume/resumetl/document"
)

// TimestampLayout is the time format embedded in backup file names.
const TimestampLayout = "20060102_150405"

// ErrPersist is matched by every *Error.
var ErrPersist = errors.New("persist failed")

// Error records a failed persistence step.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrPersist) hold.
func (e *Error) Is(target error) bool {
	return target == ErrPersist
}

// Persister saves a document to Path after backing up the current file.
type Persister struct {
	// Path is the document file.
	Path string
	// BackupDir receives the timestamped copies.
	BackupDir string
	// Now returns the backup timestamp; defaults to time.Now.
	Now func() time.Time
}

// New returns a Persister for path with backups in backupDir.
func New(path, backupDir string) *Persister {
	return &Persister{Path: path, BackupDir: backupDir}
}

func (p *Persister) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Backup copies the current bytes of Path into a new timestamped file and
// returns its path. It returns "" without error when Path does not exist.
func (p *Persister) Backup() (string, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", &Error{Op: "reading", Path: p.Path, Err: err}
	}

	if err := os.MkdirAll(p.BackupDir, 0755); err != nil {
		return "", &Error{Op: "creating backup directory", Path: p.BackupDir, Err: err}
	}

	ext := filepath.Ext(p.Path)
	stem := strings.TrimSuffix(filepath.Base(p.Path), ext)
	base := fmt.Sprintf("%s_%s", stem, p.now().Format(TimestampLayout))

	// O_EXCL keeps an earlier backup from the same second intact.
	for n := 0; ; n++ {
		name := base + ext
		if n > 0 {
			name = fmt.Sprintf("%s_%d%s", base, n, ext)
		}
		path := filepath.Join(p.BackupDir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", &Error{Op: "creating backup", Path: path, Err: err}
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", &Error{Op: "writing backup", Path: path, Err: err}
		}
		if err := f.Close(); err != nil {
			return "", &Error{Op: "writing backup", Path: path, Err: err}
		}
		return path, nil
	}
}

// Save backs up the current file, then writes doc to Path. It returns the
// backup path ("" if there was no previous file).
func (p *Persister) Save(doc *document.Document) (string, error) {
	data, err := doc.Marshal()
	if err != nil {
		return "", &Error{Op: "serializing", Path: p.Path, Err: err}
	}

	backup, err := p.Backup()
	if err != nil {
		return "", err
	}

	if err := writeFileAtomic(p.Path, data); err != nil {
		return backup, err
	}
	return backup, nil
}

// writeFileAtomic writes data to a temp file next to path and renames it
// into place, keeping the mode of an existing file.
func writeFileAtomic(path string, data []byte) error {
	mode := fs.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &Error{Op: "creating directory", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &Error{Op: "creating temp file", Path: dir, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &Error{Op: "writing", Path: tmpName, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &Error{Op: "syncing", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &Error{Op: "writing", Path: tmpName, Err: err}
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return &Error{Op: "chmod", Path: tmpName, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &Error{Op: "renaming", Path: path, Err: err}
	}
	return nil
}
