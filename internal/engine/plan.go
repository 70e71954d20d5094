package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openmined/modsync/internal/manifest"
	"github.com/openmined/modsync/internal/reconcile"
	"github.com/openmined/modsync/internal/routing"
)

// folderPlan is what planning one remote folder produced.
type folderPlan struct {
	tasks        []FileTask
	deleted      int
	archived     bool
	repaired     int
	repairFailed int
}

// planFolder reconciles one target and decides whether the remaining work is
// done file by file or through the folder archive. Only a failed initial
// manifest fetch is returned as an error.
func (e *Engine) planFolder(ctx context.Context, target routing.Target) (*folderPlan, error) {
	folder := target.RemoteFolder
	e.events.Log(fmt.Sprintf("fetching file list for %s", folder))

	root, err := e.remote.GetManifest(ctx, folder)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	e.events.Log(fmt.Sprintf("✅ %s file list fetched (%d files, %s)", folder, root.Count(), target.Mode))

	if e.preserveConfig && strings.EqualFold(target.BaseName(), "config") {
		e.events.Log(fmt.Sprintf("🛡 preserve mode: existing files in %s are kept", target.RelPath))
	}

	plan := &folderPlan{}
	res := e.scanner.Scan(target, root)
	plan.deleted += len(res.Deleted)
	e.events.Log(fmt.Sprintf("%s: missing or changed %.0f%%", folder, res.Ratio()*100))

	if res.Ratio() >= e.recheckRatio {
		e.events.Log(fmt.Sprintf("⚠ %s: divergence too high (%.0f%%), re-checking server file list", folder, res.Ratio()*100))

		fresh, err := e.remote.GetManifest(ctx, folder)
		if err != nil {
			e.events.Log(fmt.Sprintf("⚠ re-check of %s failed: %v, using archive download", folder, err))
			plan.archived = e.retrieveArchive(ctx, target)
			return plan, nil
		}

		res = e.scanner.Scan(target, fresh)
		plan.deleted += len(res.Deleted)
		e.events.Log(fmt.Sprintf("🔁 divergence after re-check: %.0f%%", res.Ratio()*100))

		if res.Ratio() >= e.archiveRatio {
			e.events.Log(fmt.Sprintf("📦 %s: divergence still %.0f%%, downloading full archive", folder, res.Ratio()*100))
			plan.archived = e.retrieveArchive(ctx, target)
			e.correct(ctx, target, fresh, plan)
			return plan, nil
		}
		e.events.Log("✅ re-check looks fine, skipping archive download")
	}

	plan.tasks = e.toTasks(target, res)
	if len(plan.tasks) > 0 {
		e.events.Log(fmt.Sprintf("%s: %d files to download", folder, len(plan.tasks)))
	} else {
		e.events.Log(fmt.Sprintf("%s: all files complete", folder))
	}
	return plan, nil
}

// correct rescans an extracted archive and repairs what is still wrong one
// file at a time, outside the worker pool.
func (e *Engine) correct(ctx context.Context, target routing.Target, root *manifest.Node, plan *folderPlan) {
	res := e.scanner.Scan(target, root)
	plan.deleted += len(res.Deleted)
	if res.Empty() {
		return
	}

	e.events.Log(fmt.Sprintf("⚙ %d files still need fixing after archive", len(res.Tasks)))
	for _, task := range e.toTasks(target, res) {
		if e.session.Stopped() || ctx.Err() != nil {
			return
		}
		if e.downloadFile(ctx, task) {
			plan.repaired++
		} else {
			plan.repairFailed++
			slog.Debug("sync correction failed", "task", task.String())
		}
	}
}

func (e *Engine) toTasks(target routing.Target, res *reconcile.Result) []FileTask {
	tasks := make([]FileTask, 0, len(res.Tasks))
	for _, rel := range res.Tasks {
		tasks = append(tasks, FileTask{
			RelPath:      rel,
			RemoteFolder: target.RemoteFolder,
			LocalBase:    target.LocalPath,
		})
	}
	return tasks
}
