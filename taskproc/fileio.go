package taskproc

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/LordOfDragons/deremotelauncher-sub000/layout"
	"github.com/pkg/errors"
)

// ErrFileNotOpen is returned by operations that require Open to have been
// called first.
var ErrFileNotOpen = errors.New("taskproc: no file open")

// FileIO is the single-open-file abstraction a write task drives one block
// at a time: open once for the duration of a FileWriteTask, write each
// block as its data arrives, close when finishing. One FileIO holds at
// most one open file, matching derlBaseTaskProcessor's single pFileStream
// member — callers needing concurrent file access use one FileIO per task.
type FileIO interface {
	TruncateFile(relPath string) error
	Open(relPath string, write bool) error
	Close() error
	Size() (uint64, error)
	Truncate(size uint64) error
	ReadAt(buf []byte, offset int64) (int, error)
	WriteAt(buf []byte, offset int64) (int, error)
	Delete(relPath string) error
}

// OSFileIO is the default FileIO, rooted at a base directory, backed by
// *os.File.
type OSFileIO struct {
	baseDir string

	mu   sync.Mutex
	file *os.File
}

func NewOSFileIO(baseDir string) *OSFileIO {
	return &OSFileIO{baseDir: baseDir}
}

func (o *OSFileIO) resolve(relPath string) string {
	return filepath.Join(o.baseDir, filepath.FromSlash(relPath))
}

// TruncateFile creates (or empties) relPath, creating parent directories as
// needed.
func (o *OSFileIO) TruncateFile(relPath string) error {
	full := o.resolve(relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errors.Wrapf(err, "mkdir for %s", relPath)
	}
	f, err := os.OpenFile(full, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "truncate %s", relPath)
	}
	return f.Close()
}

// Open opens relPath for reading or writing, closing any previously open
// file first. Opening for write creates parent directories and the file if
// missing, without truncating existing content (a partial block rewrite
// must not discard the rest of the file).
func (o *OSFileIO) Open(relPath string, write bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.file != nil {
		if err := o.file.Close(); err != nil {
			return errors.Wrap(err, "close previous file")
		}
		o.file = nil
	}

	full := o.resolve(relPath)
	flag := os.O_RDONLY
	if write {
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return errors.Wrapf(err, "mkdir for %s", relPath)
		}
		flag = os.O_RDWR | os.O_CREATE
	}

	f, err := os.OpenFile(full, flag, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open %s", relPath)
	}
	o.file = f
	return nil
}

func (o *OSFileIO) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.file == nil {
		return nil
	}
	err := o.file.Close()
	o.file = nil
	return err
}

func (o *OSFileIO) Size() (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.file == nil {
		return 0, ErrFileNotOpen
	}
	info, err := o.file.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "stat open file")
	}
	return uint64(info.Size()), nil
}

// Truncate resizes the currently open file to exactly size bytes: bytes
// before the cut point are left untouched, trailing bytes are discarded or
// zero-filled as needed. Used to bring a file to its target shape before
// blocks are written, whether that means shrinking, growing, or leaving an
// already-correct size alone, without the all-or-nothing wipe TruncateFile
// does.
func (o *OSFileIO) Truncate(size uint64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.file == nil {
		return ErrFileNotOpen
	}
	return o.file.Truncate(int64(size))
}

func (o *OSFileIO) ReadAt(buf []byte, offset int64) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.file == nil {
		return 0, ErrFileNotOpen
	}
	return o.file.ReadAt(buf, offset)
}

func (o *OSFileIO) WriteAt(buf []byte, offset int64) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.file == nil {
		return 0, ErrFileNotOpen
	}
	return o.file.WriteAt(buf, offset)
}

// Delete removes relPath, tolerating its absence.
func (o *OSFileIO) Delete(relPath string) error {
	return layout.DeleteFile(o.resolve(relPath))
}
