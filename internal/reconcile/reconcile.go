// Package reconcile compares a manifest against a local directory and works
// out which files have to be downloaded, deleting stale and (in strict mode)
// undeclared files along the way.
package reconcile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/modsync/internal/manifest"
	"github.com/openmined/modsync/internal/routing"
	"github.com/openmined/modsync/internal/utils"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers = 8

	// configSegment marks paths protected by the preserve-config policy.
	configSegment = "config"
)

// Hasher computes the content hash of a local file.
type Hasher func(fs afero.Fs, path string) (string, error)

type ScannerOpts struct {
	Fs             afero.Fs
	Hasher         Hasher
	PreserveConfig bool
	Workers        int
	// Log receives user facing progress lines.
	Log func(msg string)
}

// Scanner reconciles sync targets against manifests. A Scanner is safe to
// reuse across targets but each Scan runs to completion on its own.
type Scanner struct {
	fs             afero.Fs
	hash           Hasher
	preserveConfig bool
	workers        int
	log            func(msg string)
}

func NewScanner(opts *ScannerOpts) *Scanner {
	s := &Scanner{
		fs:             opts.Fs,
		hash:           opts.Hasher,
		preserveConfig: opts.PreserveConfig,
		workers:        opts.Workers,
		log:            opts.Log,
	}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}
	if s.hash == nil {
		s.hash = utils.FileHash
	}
	if s.workers <= 0 {
		s.workers = DefaultWorkers
	}
	if s.log == nil {
		s.log = func(string) {}
	}
	return s
}

func (s *Scanner) PreserveConfig() bool {
	return s.preserveConfig
}

// Result is the outcome of one scan.
type Result struct {
	// Tasks holds the sorted relative paths that must be downloaded.
	Tasks []string
	// Total is the number of leaves declared by the manifest.
	Total int
	// Deleted holds relative paths removed by the strict prune pass.
	Deleted []string
}

// Ratio is the share of declared files that are missing or stale. An empty
// manifest has a ratio of 0.
func (r *Result) Ratio() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(len(r.Tasks)) / float64(r.Total)
}

func (r *Result) Empty() bool {
	return len(r.Tasks) == 0
}

type scan struct {
	target   routing.Target
	group    *errgroup.Group
	declared mapset.Set[string]

	mu    sync.Mutex
	tasks []string
}

// Scan reconciles target against root using the target's mode.
func (s *Scanner) Scan(target routing.Target, root *manifest.Node) *Result {
	return s.ScanMode(target, root, target.Mode)
}

// ScanMode reconciles target against root using an explicit mode.
func (s *Scanner) ScanMode(target routing.Target, root *manifest.Node, mode routing.Mode) *Result {
	sc := &scan{
		target:   target,
		group:    &errgroup.Group{},
		declared: mapset.NewSet[string](),
	}
	// one bounded pool per scan, directories fan out into it
	sc.group.SetLimit(s.workers)

	if err := s.fs.MkdirAll(target.LocalPath, 0o755); err != nil {
		slog.Warn("reconcile mkdir", "path", target.LocalPath, "error", err)
	}

	s.fanOut(sc, root, "")
	_ = sc.group.Wait()

	res := &Result{Total: root.Count()}
	if mode == routing.Strict {
		res.Deleted = s.prune(sc)
	}

	sort.Strings(sc.tasks)
	res.Tasks = sc.tasks
	return res
}

func (s *Scanner) fanOut(sc *scan, node *manifest.Node, prefix string) {
	for _, name := range node.Names() {
		child := node.Children[name]
		if child == nil {
			continue
		}

		relPath := utils.JoinRel(prefix, name)
		localPath := utils.LocalPath(sc.target.LocalPath, relPath)
		if localPath == sc.target.LocalPath || !utils.IsWithin(sc.target.LocalPath, localPath) {
			s.log(fmt.Sprintf("[unsafe] ignoring %s, it leaves %s", relPath, sc.target.RelPath))
			slog.Warn("reconcile unsafe path", "folder", sc.target.RemoteFolder, "path", relPath)
			continue
		}

		if child.IsDir() {
			if err := s.fs.MkdirAll(localPath, 0o755); err != nil {
				slog.Warn("reconcile mkdir", "path", localPath, "error", err)
			}
			s.fanOut(sc, child, relPath)
			continue
		}

		sc.declared.Add(relPath)
		hash := child.Hash
		sc.group.Go(func() error {
			if s.needsDownload(sc.target, localPath, relPath, hash) {
				sc.mu.Lock()
				sc.tasks = append(sc.tasks, relPath)
				sc.mu.Unlock()
			}
			return nil
		})
	}
}

// needsDownload evaluates a single declared leaf. Stale files are removed so
// the download starts from a clean slate.
func (s *Scanner) needsDownload(target routing.Target, localPath, relPath, expected string) bool {
	if _, err := s.fs.Stat(localPath); err != nil {
		s.log(fmt.Sprintf("[missing] %s", relPath))
		return true
	}

	if s.isProtected(target, relPath) {
		s.log(fmt.Sprintf("[preserved] keeping local %s", relPath))
		return false
	}

	actual, err := s.hash(s.fs, localPath)
	if err != nil {
		slog.Warn("reconcile hash", "path", localPath, "error", err)
	}
	if err == nil && actual == expected {
		return false
	}

	s.log(fmt.Sprintf("[changed] %s", relPath))
	if err := s.fs.Remove(localPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("reconcile remove stale", "path", localPath, "error", err)
	}
	return true
}

// isProtected reports whether an existing file falls under the preserve-config
// policy. Segments are taken relative to the version root.
func (s *Scanner) isProtected(target routing.Target, relPath string) bool {
	if !s.preserveConfig {
		return false
	}
	return utils.HasSegment(utils.JoinRel(target.RelPath, relPath), configSegment)
}

// prune deletes every local file below the target that the manifest does not
// declare, unless the target itself is a preserved config directory.
func (s *Scanner) prune(sc *scan) []string {
	if s.preserveConfig && strings.EqualFold(sc.target.BaseName(), configSegment) {
		s.log("[preserved] config mode active, skipping removal of extra files")
		return nil
	}

	var deleted []string
	base := sc.target.LocalPath
	_ = afero.Walk(s.fs, base, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			slog.Warn("reconcile walk", "path", path, "error", err)
			return nil
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return nil
		}
		relPath := utils.NormPath(rel)
		if sc.declared.Contains(relPath) {
			return nil
		}

		s.log(fmt.Sprintf("[extra] deleting %s", relPath))
		if err := s.fs.Remove(path); err != nil {
			s.log(fmt.Sprintf("[extra] delete failed %s: %v", relPath, err))
			return nil
		}
		deleted = append(deleted, relPath)
		return nil
	})

	sort.Strings(deleted)
	return deleted
}
