package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

const chunkSize = 64 * 1024

type taskResult struct {
	task FileTask
	ok   bool
}

// execute downloads tasks with a fixed number of workers and reports overall
// progress from a single collector so counts are emitted in order.
func (e *Engine) execute(ctx context.Context, tasks []FileTask) (downloaded, failed int) {
	jobs := make(chan FileTask, len(tasks))
	results := make(chan taskResult, len(tasks))

	workers := min(e.workers, len(tasks))

	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for task := range jobs {
				results <- taskResult{task: task, ok: e.downloadAndVerify(ctx, task)}
			}
		}()
	}

	for _, task := range tasks {
		jobs <- task
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		if res.ok {
			downloaded++
		} else {
			failed++
		}
		e.events.OverallProgress(completed)
	}

	return downloaded, failed
}

// downloadFile fetches one task with up to maxRetries attempts. Stop and pause
// are honoured before every attempt; a running transfer is never interrupted.
func (e *Engine) downloadFile(ctx context.Context, task FileTask) bool {
	localPath := task.LocalPath()
	if err := e.fs.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		slog.Warn("sync mkdir", "path", filepath.Dir(localPath), "error", err)
	}

	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		if !e.session.Wait(ctx) {
			return false
		}

		e.events.Log(fmt.Sprintf("⬇ downloading %s (attempt %d)", task, attempt))
		size, err := e.fetch(ctx, task, localPath)
		if err == nil {
			e.events.Log(fmt.Sprintf("✅ downloaded %s (%s)", task, humanize.IBytes(uint64(size))))
			e.events.FileProgress(100)
			return true
		}

		e.events.Log(fmt.Sprintf("❌ download error %s: %v", task, err))
		slog.Debug("sync download attempt", "task", task.String(), "attempt", attempt, "error", err)

		if attempt < e.maxRetries && !e.sleep(ctx, e.retryDelay) {
			return false
		}
	}

	e.events.Log(fmt.Sprintf("❌ giving up on %s", task))
	slog.Warn("sync download failed", "task", task.String(), "attempts", e.maxRetries)
	return false
}

// fetch streams one file to localPath and returns the number of bytes written.
func (e *Engine) fetch(ctx context.Context, task FileTask, localPath string) (int64, error) {
	dl, err := e.remote.OpenFile(ctx, task.RemoteFolder, task.RelPath)
	if err != nil {
		return 0, err
	}
	defer dl.Close()

	f, err := e.fs.Create(localPath)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", localPath, err)
	}

	n, err := e.copyWithProgress(f, dl.Body, dl.Size)
	f.Close()
	if err != nil {
		// a truncated file must not pass for a complete one
		e.fs.Remove(localPath)
		return n, err
	}
	return n, nil
}

// copyWithProgress copies src to dst in fixed chunks, emitting file progress
// whenever the whole percentage changes. Unknown sizes report 100 directly.
func (e *Engine) copyWithProgress(dst io.Writer, src io.Reader, size int64) (int64, error) {
	buf := make([]byte, chunkSize)
	var written int64
	last := -1

	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)

			percent := 100
			if size > 0 {
				percent = min(int(written*100/size), 100)
			}
			if percent != last {
				last = percent
				e.events.FileProgress(percent)
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !e.session.Stopped() && ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-e.session.Done():
		return false
	case <-ctx.Done():
		return false
	}
}
