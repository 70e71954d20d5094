// Package library exposes a directory tree as sync folders: top-level
// directories are folders, files below them are hashed into manifests and
// can be streamed one by one or as a zip archive.
package library

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openmined/modsync/internal/manifest"
	"github.com/openmined/modsync/internal/utils"
	"github.com/spf13/afero"
)

const (
	DefaultHashCacheSize = 16384

	// UpdateFolder holds client release metadata and is never offered for sync.
	UpdateFolder = "clientupdate"
)

var (
	ErrInvalidPath = errors.New("invalid path")
	ErrNotFound    = errors.New("not found")
)

type Config struct {
	Fs            afero.Fs
	Root          string
	HashCacheSize int
}

type Library struct {
	fs    afero.Fs
	root  string
	cache *lru.Cache[string, string]
}

func New(cfg *Config) (*Library, error) {
	if cfg.Root == "" {
		return nil, errors.New("library root is required")
	}

	fsys := cfg.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	size := cfg.HashCacheSize
	if size <= 0 {
		size = DefaultHashCacheSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("hash cache: %w", err)
	}

	return &Library{
		fs:    fsys,
		root:  filepath.Clean(cfg.Root),
		cache: cache,
	}, nil
}

func (l *Library) Root() string {
	return l.root
}

// Folders lists the sync folders, sorted.
func (l *Library) Folders() ([]string, error) {
	entries, err := afero.ReadDir(l.fs, l.root)
	if err != nil {
		return nil, err
	}

	folders := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(name, ".") || strings.EqualFold(name, UpdateFolder) {
			continue
		}
		folders = append(folders, name)
	}
	sort.Strings(folders)
	return folders, nil
}

// Resolve maps folder and a "/" separated path below it to a host path,
// rejecting anything that would leave the library root.
func (l *Library) Resolve(folder, relPath string) (string, error) {
	if folder == "" || folder == "." || folder == ".." || strings.ContainsAny(folder, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, folder)
	}

	rel := utils.NormPath(relPath)
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, relPath)
		}
	}

	base := filepath.Join(l.root, folder)
	full := utils.LocalPath(base, rel)
	if !utils.IsWithin(base, full) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, relPath)
	}
	return full, nil
}

// Stat resolves and stats a path, mapping missing files to ErrNotFound.
func (l *Library) Stat(folder, relPath string) (string, fs.FileInfo, error) {
	full, err := l.Resolve(folder, relPath)
	if err != nil {
		return "", nil, err
	}

	info, err := l.fs.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil, fmt.Errorf("%w: %s/%s", ErrNotFound, folder, relPath)
	} else if err != nil {
		return "", nil, err
	}
	return full, info, nil
}

// Manifest builds the nested hash tree for a directory below folder.
func (l *Library) Manifest(folder, relPath string) (*manifest.Node, error) {
	dir, info, err := l.Stat(folder, relPath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidPath, relPath)
	}

	root := manifest.Dir(nil)
	err = afero.Walk(l.fs, dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		parent, name := locate(root, filepath.ToSlash(rel))

		if info.IsDir() {
			if _, ok := parent.Children[name]; !ok {
				parent.Children[name] = manifest.Dir(nil)
			}
			return nil
		}

		hash, err := l.hash(path, info)
		if err != nil {
			return err
		}
		parent.Children[name] = manifest.Leaf(hash)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return root, nil
}

// Open opens a regular file for download.
func (l *Library) Open(folder, relPath string) (afero.File, fs.FileInfo, error) {
	full, info, err := l.Stat(folder, relPath)
	if err != nil {
		return nil, nil, err
	}
	if info.IsDir() {
		return nil, nil, fmt.Errorf("%w: %s is a directory", ErrInvalidPath, relPath)
	}

	f, err := l.fs.Open(full)
	if err != nil {
		return nil, nil, err
	}
	return f, info, nil
}

// WriteArchive streams folder as a zip with entries relative to the folder.
func (l *Library) WriteArchive(w io.Writer, folder string) error {
	dir, info, err := l.Stat(folder, "")
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidPath, folder)
	}

	zw := zip.NewWriter(w)
	err = afero.Walk(l.fs, dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = rel
		if info.IsDir() {
			header.Name += "/"
			header.UncompressedSize64 = 0
		} else {
			header.Method = zip.Deflate
		}

		entry, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		f, err := l.fs.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(entry, f)
		return err
	})
	if err != nil {
		zw.Close()
		return err
	}

	return zw.Close()
}

func (l *Library) hash(path string, info fs.FileInfo) (string, error) {
	key := fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
	if hash, ok := l.cache.Get(key); ok {
		return hash, nil
	}

	hash, err := utils.FileHash(l.fs, path)
	if err != nil {
		return "", err
	}
	l.cache.Add(key, hash)
	slog.Debug("library hash", "path", path, "hash", hash)
	return hash, nil
}

// locate returns the directory node holding rel and the final segment,
// creating intermediate directories as needed.
func locate(root *manifest.Node, rel string) (*manifest.Node, string) {
	parts := strings.Split(rel, "/")
	node := root
	for _, dir := range parts[:len(parts)-1] {
		child, ok := node.Children[dir]
		if !ok || !child.IsDir() {
			child = manifest.Dir(nil)
			node.Children[dir] = child
		}
		node = child
	}
	return node, parts[len(parts)-1]
}
