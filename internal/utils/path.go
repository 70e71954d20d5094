package utils

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ResolvePath expands a leading "~" and returns a clean absolute path.
func ResolvePath(p string) (string, error) {
	if p == "" {
		return "", errors.New("path cannot be empty")
	}

	if strings.HasPrefix(p, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", errors.New("failed to retrieve home directory")
		}
		p = strings.Replace(p, "~", homeDir, 1)
	}

	absPath, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	return filepath.Clean(absPath), nil
}

// NormPath converts a host path to the logical "/" separated form used on the wire.
func NormPath(p string) string {
	p = filepath.ToSlash(p)
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean(p)
	p = strings.TrimLeft(p, "/")
	if p == "." {
		return ""
	}
	return p
}

// JoinRel joins logical path segments with "/", skipping empty ones.
func JoinRel(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			nonEmpty = append(nonEmpty, part)
		}
	}
	return strings.Join(nonEmpty, "/")
}

// LocalPath maps a logical relative path below base onto the host filesystem.
func LocalPath(base, rel string) string {
	return filepath.Join(base, filepath.FromSlash(rel))
}

// HasSegment reports whether any "/" separated segment of rel equals name,
// ignoring case.
func HasSegment(rel, name string) bool {
	for _, seg := range strings.Split(NormPath(rel), "/") {
		if strings.EqualFold(seg, name) {
			return true
		}
	}
	return false
}

// IsWithin reports whether target resolves to root or a path below it.
func IsWithin(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func EnsureParent(p string) error {
	return EnsureDir(filepath.Dir(p))
}

func EnsureDir(p string) error {
	if _, err := os.Stat(p); err == nil {
		return nil
	}

	return os.MkdirAll(p, 0o755)
}

func DirExists(p string) bool {
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	return info.IsDir()
}

func FileExists(p string) bool {
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
