package fileutil

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
)

// ErrTargetExists is returned by MoveFile when dst already holds different content.
var ErrTargetExists = errors.New("target already exists")

// CopyFileVerified streams src to dst with SHA256 + size integrity verification.
// The destination keeps the source permissions. Removes dst on mismatch.
func CopyFileVerified(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	srcSize := srcInfo.Size()

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, srcInfo.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	srcHasher := sha256.New()
	dstHasher := sha256.New()
	tee := io.TeeReader(in, srcHasher)
	multi := io.MultiWriter(out, dstHasher)

	written, err := io.Copy(multi, tee)
	if err != nil {
		_ = os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}

	if written != srcSize {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcSize, written)
	}

	if !bytes.Equal(srcHasher.Sum(nil), dstHasher.Sum(nil)) {
		_ = os.Remove(dst)
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}

	return nil
}

// MoveFile relocates src to dst, creating the parent of dst. Rename is tried
// first; across filesystems the file is copied with verification and the
// source removed.
//
// When dst already exists with the same content as src the earlier move is
// treated as complete and src is removed. Any other existing dst fails with
// ErrTargetExists and both files are left untouched.
func MoveFile(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if !srcInfo.Mode().IsRegular() {
		return fmt.Errorf("move %q: not a regular file", src)
	}

	if dstInfo, err := os.Stat(dst); err == nil {
		if dstInfo.Mode().IsRegular() && dstInfo.Size() == srcInfo.Size() {
			same, err := sameContent(src, dst)
			if err != nil {
				return fmt.Errorf("compare with existing target: %w", err)
			}
			if same {
				if err := os.Remove(src); err != nil {
					return fmt.Errorf("remove duplicate source: %w", err)
				}
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrTargetExists, dst)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat target: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create target directory: %w", err)
	}

	if err := os.Rename(src, dst); err == nil {
		return nil
	} else if !isCrossDevice(err) {
		return fmt.Errorf("rename: %w", err)
	}

	if err := CopyFileVerified(src, dst); err != nil {
		return fmt.Errorf("copy across devices: %w", err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove source after copy: %w", err)
	}
	return nil
}

// MoveTree relocates src, a directory or symlink, to dst. A plain rename is
// used when dst does not exist yet. Otherwise, or across filesystems, the
// entries are merged into dst one by one with MoveFile rules and the emptied
// source directories are removed.
func MoveTree(src, dst string) error {
	if _, err := os.Lstat(src); err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if _, err := os.Lstat(dst); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("create target directory: %w", err)
		}
		if err := os.Rename(src, dst); err == nil {
			return nil
		} else if !isCrossDevice(err) {
			return fmt.Errorf("rename: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("stat target: %w", err)
	}

	var dirs []string
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		switch {
		case d.IsDir():
			dirs = append(dirs, path)
			return os.MkdirAll(target, 0o755)
		case d.Type()&fs.ModeSymlink != 0:
			return moveSymlink(path, target)
		case d.Type().IsRegular():
			return MoveFile(path, target)
		default:
			return fmt.Errorf("move %q: unsupported file type %s", path, d.Type())
		}
	})
	if err != nil {
		return err
	}
	for i := len(dirs) - 1; i >= 0; i-- {
		if _, err := RemoveIfEmpty(dirs[i]); err != nil {
			return fmt.Errorf("remove source directory: %w", err)
		}
	}
	return nil
}

func moveSymlink(src, dst string) error {
	link, err := os.Readlink(src)
	if err != nil {
		return err
	}
	if existing, err := os.Readlink(dst); err == nil {
		if existing != link {
			return fmt.Errorf("%w: %s", ErrTargetExists, dst)
		}
	} else if _, statErr := os.Lstat(dst); statErr == nil {
		return fmt.Errorf("%w: %s", ErrTargetExists, dst)
	} else if err := os.Symlink(link, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func sameContent(a, b string) (bool, error) {
	sumA, err := fileDigest(a)
	if err != nil {
		return false, err
	}
	sumB, err := fileDigest(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(sumA, sumB), nil
}

func fileDigest(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// RemoveIfEmpty removes dir when it has no entries and reports whether it did.
func RemoveIfEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if len(entries) > 0 {
		return false, nil
	}
	if err := os.Remove(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		return errors.Is(linkErr.Err, syscall.EXDEV)
	}
	return errors.Is(err, syscall.EXDEV)
}
