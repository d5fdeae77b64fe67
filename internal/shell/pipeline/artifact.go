package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// =============================================================================
// Linking
// =============================================================================

// Link places src at dst. An existing symlink is left alone since it already
// follows src. A symlink is preferred; when the filesystem refuses one the
// file is copied, and a copy is refreshed on every call.
func Link(src, dst string) error {
	info, err := os.Lstat(dst)
	switch {
	case err == nil && info.Mode()&os.ModeSymlink != 0:
		return nil
	case err == nil:
		return copyFile(src, dst)
	case !errors.Is(err, os.ErrNotExist):
		return NewIOError("stat", dst, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return NewIOError("mkdir", filepath.Dir(dst), err)
	}

	abs, err := filepath.Abs(src)
	if err != nil {
		return NewIOError("resolve", src, err)
	}
	if err := os.Symlink(abs, dst); err == nil {
		return nil
	}
	return copyFile(src, dst)
}

// copyFile writes src to a temporary file beside dst and renames it into
// place, so readers never see a partial artifact.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return NewIOError("open", src, err)
	}
	defer in.Close()

	out, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return NewIOError("create", dst, err)
	}
	tmp := out.Name()
	defer os.Remove(tmp)

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return NewIOError("copy", dst, err)
	}
	if err := out.Chmod(0o644); err != nil {
		out.Close()
		return NewIOError("chmod", dst, err)
	}
	if err := out.Close(); err != nil {
		return NewIOError("close", dst, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return NewIOError("rename", dst, err)
	}
	return nil
}

// =============================================================================
// Hashing
// =============================================================================

// HashBytes returns the hex sha256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type hashEntry struct {
	size    int64
	modTime time.Time
	hash    string
}

// Hasher hashes artifacts, remembering results while a file is unchanged.
type Hasher struct {
	cache *lru.Cache[string, hashEntry]
}

// NewHasher creates a hasher remembering up to size files.
func NewHasher(size int) *Hasher {
	if size <= 0 {
		size = 256
	}
	cache, _ := lru.New[string, hashEntry](size)
	return &Hasher{cache: cache}
}

// Hash returns the hex sha256 of the file at path.
func (h *Hasher) Hash(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", NewIOError("stat", path, err)
	}
	if e, ok := h.cache.Get(path); ok && e.size == info.Size() && e.modTime.Equal(info.ModTime()) {
		return e.hash, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", NewIOError("open", path, err)
	}
	defer f.Close()

	sum := sha256.New()
	if _, err := io.Copy(sum, f); err != nil {
		return "", NewIOError("read", path, err)
	}
	hash := hex.EncodeToString(sum.Sum(nil))
	h.cache.Add(path, hashEntry{size: info.Size(), modTime: info.ModTime(), hash: hash})
	return hash, nil
}

// Exists reports whether path names an existing file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
