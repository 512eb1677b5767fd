package util

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var stillImageExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".gif"}
var videoExtensions = []string{".mp4", ".mov", ".avi", ".webm"}

// HashPath returns the md5 hex digest of a logical path string. Thumbnail
// filenames are derived from this, so the digest must stay stable across
// runs and platforms.
func HashPath(p string) string {
	sum := md5.Sum([]byte(p))
	return hex.EncodeToString(sum[:])
}

// ShortenPath rewrites the file name portion of a relative path to the
// first 8 hex characters of its md5 digest, keeping the directory and
// extension. Data URIs pass through untouched.
func ShortenPath(rel string) string {
	if rel == "" || strings.HasPrefix(rel, "data:") {
		return rel
	}
	dir := path.Dir(rel)
	name := path.Base(rel)
	ext := strings.ToLower(path.Ext(name))
	sum := md5.Sum([]byte(name))
	short := hex.EncodeToString(sum[:])[:8] + ext
	if dir == "." {
		return short
	}
	return path.Join(dir, short)
}

func IsStillImagePath(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	for _, e := range stillImageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func IsVideoPath(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	for _, e := range videoExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// StillImageExtensions returns the extensions the verifier probes when
// repairing a dangling reference.
func StillImageExtensions() []string {
	out := make([]string, len(stillImageExtensions))
	copy(out, stillImageExtensions)
	return out
}

func FileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// CopyFile copies src to dst, creating parent directories as needed. The
// write goes to a temporary sibling first so a failed copy never leaves a
// partial file at the destination.
func CopyFile(src string, dst string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, err
	}

	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return 0, err
	}
	if err = out.Close(); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}

	return n, os.Rename(tmp, dst)
}

func FileSize(p string) int64 {
	info, err := os.Stat(p)
	if err != nil {
		return 0
	}
	return info.Size()
}
