package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openmined/modsync/internal/utils"
)

// downloadAndVerify downloads a task and checks the result against a freshly
// fetched manifest. A mismatch earns exactly one more download; whatever that
// produces is final. Verification problems never fail the task.
func (e *Engine) downloadAndVerify(ctx context.Context, task FileTask) bool {
	if !e.downloadFile(ctx, task) {
		return false
	}

	expected, ok := e.expectedHash(ctx, task)
	if !ok {
		return true
	}

	actual, err := utils.FileHash(e.fs, task.LocalPath())
	if err != nil {
		slog.Debug("sync verify hash", "task", task.String(), "error", err)
		return true
	}
	if actual == expected {
		return true
	}

	e.events.Log(fmt.Sprintf("⚠ %s still differs after download, downloading again", task))
	e.downloadFile(ctx, task)
	return true
}

func (e *Engine) expectedHash(ctx context.Context, task FileTask) (string, bool) {
	root, err := e.remote.GetManifest(ctx, task.RemoteFolder)
	if err != nil {
		slog.Debug("sync verify manifest", "task", task.String(), "error", err)
		return "", false
	}

	hash, ok := root.Lookup(task.RelPath)
	if !ok || hash == "" {
		return "", false
	}
	return hash, true
}
