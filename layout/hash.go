package layout

import (
	"crypto/sha256"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// FileHashReadSize is the chunk size used while streaming a whole file
// through sha256 for its top-level Hash, independent of BlockSize.
const FileHashReadSize = 8 * 1024

// DefaultBlockSize is the block size a server-side scan splits files larger
// than itself into, matching the fixed size the remote client task
// processor uses to build its authoritative layout.
const DefaultBlockSize = 1024000

// sha256OfEmpty is the hash of a zero-length input, returned for empty
// files and empty blocks without touching the filesystem.
var sha256OfEmpty = sha256.Sum256(nil)

// HashFile streams path through sha256 in FileHashReadSize chunks and
// returns its whole-file hash. An empty file is opened and read like any
// other and hashes to sha256OfEmpty.
func HashFile(path string) ([32]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, FileHashReadSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return [32]byte{}, errors.Wrapf(err, "hash %s", path)
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// HashBlock reads exactly size bytes at offset from path and returns their
// sha256 hash. A size of 0 returns sha256OfEmpty without opening the file.
func HashBlock(path string, offset, size uint64) ([32]byte, error) {
	if size == 0 {
		return sha256OfEmpty, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
		return [32]byte{}, errors.Wrapf(err, "seek %s", path)
	}

	h := sha256.New()
	if _, err := io.CopyN(h, f, int64(size)); err != nil {
		return [32]byte{}, errors.Wrapf(err, "hash block %s @%d+%d", path, offset, size)
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// BuildBlocks splits a file of fileSize bytes into blockSize chunks,
// hashing each one. The last block is shorter than blockSize unless
// fileSize divides it evenly, matching CalcFileBlockHashes.
func BuildBlocks(path string, fileSize, blockSize uint64) ([]Block, error) {
	count := BlockCount(fileSize, blockSize)
	blocks := make([]Block, 0, count)

	var offset uint64
	for i := uint32(0); i < count; i++ {
		size := blockSize
		if offset+size > fileSize {
			size = fileSize - offset
		}
		hash, err := HashBlock(path, offset, size)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, Block{Offset: offset, Size: size, Hash: hash, HashSet: true})
		offset += size
	}
	return blocks, nil
}

// HashFileFull computes the File record for path relative to relPath,
// always filling Hash. If fileSize exceeds blockSize, it also fills Blocks;
// otherwise the file is treated as one implicit block covered by Hash.
func HashFileFull(absPath, relPath string, fileSize, blockSize uint64) (File, error) {
	hash, err := HashFile(absPath)
	if err != nil {
		return File{}, err
	}

	f := File{Path: relPath, Size: fileSize, Hash: hash, HashSet: true}
	if fileSize > blockSize {
		blocks, err := BuildBlocks(absPath, fileSize, blockSize)
		if err != nil {
			return File{}, err
		}
		f.BlockSize = blockSize
		f.Blocks = blocks
	}
	return f, nil
}

// Scan walks root recursively and returns a FileLayout with every regular
// file hashed, using blockSize to decide which files get split into blocks.
// Paths are stored slash-separated and relative to root.
func Scan(root string, blockSize uint64) (*FileLayout, error) {
	type found struct {
		abs, rel string
		size     uint64
	}
	var files []found

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, found{abs: path, rel: filepath.ToSlash(rel), size: uint64(info.Size())})
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan %s", root)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].rel < files[j].rel })

	layout := NewFileLayout()
	for _, fd := range files {
		f, err := HashFileFull(fd.abs, fd.rel, fd.size, blockSize)
		if err != nil {
			return nil, err
		}
		layout.Set(f)
	}
	return layout, nil
}

// DeleteFile removes the file at path, tolerating its absence: a file
// already missing on disk is not a delete failure, only stat/unlink errors
// other than "not exist" are.
func DeleteFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "delete %s", path)
	}
	return nil
}
