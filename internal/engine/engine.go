// Package engine drives a complete sync run: it resolves every remote folder
// to a local target, reconciles it, falls back to archive retrieval when a
// target has drifted too far, and finally downloads whatever is left with a
// bounded worker pool.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/openmined/modsync/internal/manifest"
	"github.com/openmined/modsync/internal/modsdk"
	"github.com/openmined/modsync/internal/reconcile"
	"github.com/openmined/modsync/internal/routing"
	"github.com/openmined/modsync/internal/utils"
	"github.com/spf13/afero"
)

const (
	DefaultWorkers      = 8
	DefaultMaxRetries   = 3
	DefaultRetryDelay   = 1 * time.Second
	DefaultRecheckRatio = 0.6
	DefaultArchiveRatio = 0.5

	lockFileName = ".modsync.lock"
)

var (
	ErrSyncAlreadyRunning = errors.New("sync already running for this directory")
	ErrNoVersionRoot      = errors.New("version directory missing")
)

// Remote is the server side of a sync run.
type Remote interface {
	ListFolders(ctx context.Context) ([]string, error)
	GetManifest(ctx context.Context, folder string) (*manifest.Node, error)
	OpenFile(ctx context.Context, folder, relPath string) (*modsdk.Download, error)
	OpenArchive(ctx context.Context, folder string) (*modsdk.Download, error)
}

var _ Remote = (*modsdk.Client)(nil)

type Opts struct {
	Remote      Remote
	VersionRoot string
	Fs          afero.Fs
	Events      Events
	Session     *Session

	// PreserveConfig protects existing files below any "config" segment.
	PreserveConfig bool

	Workers      int
	MaxRetries   int
	RetryDelay   time.Duration
	RecheckRatio float64
	ArchiveRatio float64
	TempDir      string
}

// FileTask is one file that has to be downloaded.
type FileTask struct {
	RelPath      string
	RemoteFolder string
	LocalBase    string
}

func (t FileTask) LocalPath() string {
	return utils.LocalPath(t.LocalBase, t.RelPath)
}

func (t FileTask) String() string {
	return t.RemoteFolder + "/" + t.RelPath
}

// Summary describes the outcome of a run.
type Summary struct {
	RunID          string
	Folders        int
	SkippedFolders []string
	Archived       []string
	Tasks          int
	Downloaded     int
	Failed         int
	Deleted        int
}

type Engine struct {
	remote      Remote
	versionRoot string
	fs          afero.Fs
	events      Events
	session     *Session
	scanner     *reconcile.Scanner

	preserveConfig bool
	workers        int
	maxRetries     int
	retryDelay     time.Duration
	recheckRatio   float64
	archiveRatio   float64
	tempDir        string
}

func New(opts *Opts) (*Engine, error) {
	if opts.Remote == nil {
		return nil, errors.New("engine: remote is required")
	}
	if opts.VersionRoot == "" {
		return nil, ErrNoVersionRoot
	}

	e := &Engine{
		remote:         opts.Remote,
		versionRoot:    opts.VersionRoot,
		fs:             opts.Fs,
		events:         opts.Events,
		session:        opts.Session,
		preserveConfig: opts.PreserveConfig,
		workers:        opts.Workers,
		maxRetries:     opts.MaxRetries,
		retryDelay:     opts.RetryDelay,
		recheckRatio:   opts.RecheckRatio,
		archiveRatio:   opts.ArchiveRatio,
		tempDir:        opts.TempDir,
	}

	if e.fs == nil {
		e.fs = afero.NewOsFs()
	}
	if e.events == nil {
		e.events = NopEvents{}
	}
	if e.session == nil {
		e.session = NewSession()
	}
	if e.workers <= 0 {
		e.workers = DefaultWorkers
	}
	if e.maxRetries <= 0 {
		e.maxRetries = DefaultMaxRetries
	}
	if e.retryDelay <= 0 {
		e.retryDelay = DefaultRetryDelay
	}
	if e.recheckRatio <= 0 {
		e.recheckRatio = DefaultRecheckRatio
	}
	if e.archiveRatio <= 0 {
		e.archiveRatio = DefaultArchiveRatio
	}
	if e.tempDir == "" {
		e.tempDir = os.TempDir()
	}

	e.scanner = reconcile.NewScanner(&reconcile.ScannerOpts{
		Fs:             e.fs,
		PreserveConfig: e.preserveConfig,
		Workers:        e.workers,
		Log:            e.events.Log,
	})

	return e, nil
}

func (e *Engine) Session() *Session {
	return e.session
}

// Run performs one full sync. Failures of single files or folders are
// reported through events and the summary; only a missing folder list or an
// unusable version directory abort the run.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{RunID: uuid.NewString()}
	logger := slog.With("run", summary.RunID)
	tStart := time.Now()

	if err := e.prepareRoot(); err != nil {
		return summary, err
	}

	unlock, err := e.lock()
	if err != nil {
		return summary, err
	}
	defer unlock()

	e.events.Log("connecting to server, fetching folder list")
	folders, err := e.remote.ListFolders(ctx)
	if err != nil {
		e.events.Log(fmt.Sprintf("❌ cannot fetch folder list: %v", err))
		logger.Error("sync list folders", "error", err)
		return summary, fmt.Errorf("list folders: %w", err)
	}
	e.events.Log(fmt.Sprintf("✅ server folders: %v", folders))
	summary.Folders = len(folders)

	var tasks []FileTask
	seen := make(map[string]struct{})
	for _, folder := range folders {
		if e.session.Stopped() || ctx.Err() != nil {
			break
		}

		var plan *folderPlan
		target, err := routing.Resolve(e.versionRoot, folder)
		if err == nil {
			plan, err = e.planFolder(ctx, target)
		}
		if plan != nil {
			summary.Deleted += plan.deleted
			summary.Downloaded += plan.repaired
			summary.Failed += plan.repairFailed
			if plan.archived {
				summary.Archived = append(summary.Archived, folder)
			}
		}
		if err != nil {
			e.events.Log(fmt.Sprintf("❌ skipping %s: %v", folder, err))
			logger.Warn("sync skip folder", "folder", folder, "error", err)
			summary.SkippedFolders = append(summary.SkippedFolders, folder)
			continue
		}

		for _, task := range plan.tasks {
			key := task.LocalPath()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			tasks = append(tasks, task)
		}
	}

	summary.Tasks = len(tasks)
	if len(tasks) == 0 {
		e.events.Log("🎉 all files are up to date")
		logger.Info("sync complete", "folders", summary.Folders, "deleted", summary.Deleted, "took", time.Since(tStart))
		return summary, nil
	}

	e.events.TotalTasks(len(tasks))
	downloaded, failed := e.execute(ctx, tasks)
	summary.Downloaded += downloaded
	summary.Failed += failed

	logger.Info("sync complete",
		"folders", summary.Folders,
		"skipped", len(summary.SkippedFolders),
		"archived", len(summary.Archived),
		"tasks", summary.Tasks,
		"downloaded", summary.Downloaded,
		"failed", summary.Failed,
		"deleted", summary.Deleted,
		"took", time.Since(tStart),
	)
	return summary, nil
}

func (e *Engine) prepareRoot() error {
	dirs := append([]string{e.versionRoot}, routing.StandardDirs(e.versionRoot)...)
	for _, dir := range dirs {
		if err := e.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("prepare %s: %w", dir, err)
		}
	}
	return nil
}

// lock takes an advisory lock on the version directory so two runs never
// write into the same tree. Only real filesystems are locked.
func (e *Engine) lock() (func(), error) {
	if _, ok := e.fs.(*afero.OsFs); !ok {
		return func() {}, nil
	}

	fl := flock.New(filepath.Join(e.versionRoot, lockFileName))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", e.versionRoot, err)
	}
	if !locked {
		return nil, ErrSyncAlreadyRunning
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			slog.Warn("sync unlock", "path", fl.Path(), "error", err)
		}
		_ = os.Remove(fl.Path())
	}, nil
}
