package engine

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/openmined/modsync/internal/routing"
	"github.com/openmined/modsync/internal/utils"
	"github.com/spf13/afero"
)

var ErrUnsafeArchiveEntry = errors.New("archive entry escapes target directory")

// retrieveArchive downloads the folder archive to a temporary file and
// extracts it into the target. The temporary file is removed on every path.
// Failures are logged; the caller decides what to do with the result.
func (e *Engine) retrieveArchive(ctx context.Context, target routing.Target) bool {
	e.events.Log(fmt.Sprintf("📦 downloading archive for %s", target.RemoteFolder))

	if err := e.fs.MkdirAll(e.tempDir, 0o755); err != nil {
		e.events.Log(fmt.Sprintf("❌ archive download or extraction failed: %v", err))
		return false
	}

	tmp, err := afero.TempFile(e.fs, e.tempDir, "modsync-*.zip")
	if err != nil {
		e.events.Log(fmt.Sprintf("❌ archive download or extraction failed: %v", err))
		return false
	}
	defer func() {
		tmp.Close()
		if err := e.fs.Remove(tmp.Name()); err != nil {
			slog.Warn("sync remove temp archive", "path", tmp.Name(), "error", err)
		}
	}()

	size, err := e.fetchArchive(ctx, target.RemoteFolder, tmp)
	if err != nil {
		e.events.Log(fmt.Sprintf("❌ archive download or extraction failed: %v", err))
		return false
	}

	e.events.Log(fmt.Sprintf("🧩 archive downloaded (%s), extracting", humanize.IBytes(uint64(size))))
	count, err := e.extract(tmp, size, target)
	if err != nil {
		e.events.Log(fmt.Sprintf("❌ archive download or extraction failed: %v", err))
		return false
	}

	e.events.Log(fmt.Sprintf("✅ extracted %d entries", count))
	return true
}

func (e *Engine) fetchArchive(ctx context.Context, folder string, dst io.Writer) (int64, error) {
	dl, err := e.remote.OpenArchive(ctx, folder)
	if err != nil {
		return 0, err
	}
	defer dl.Close()

	return e.copyWithProgress(dst, dl.Body, dl.Size)
}

// extract unpacks every entry below target.LocalPath and reports progress as
// entries processed over total entries.
func (e *Engine) extract(src io.ReaderAt, size int64, target routing.Target) (int, error) {
	zr, err := zip.NewReader(src, size)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}

	total := len(zr.File)
	for idx, zf := range zr.File {
		if err := e.extractEntry(zf, target); err != nil {
			return idx, err
		}
		e.events.FileProgress((idx + 1) * 100 / total)
	}
	return total, nil
}

func (e *Engine) extractEntry(zf *zip.File, target routing.Target) error {
	rel := utils.NormPath(zf.Name)
	if rel == "" {
		return nil
	}

	dest := utils.LocalPath(target.LocalPath, rel)
	if !utils.IsWithin(target.LocalPath, dest) {
		return fmt.Errorf("%w: %s", ErrUnsafeArchiveEntry, zf.Name)
	}

	if zf.FileInfo().IsDir() || strings.HasSuffix(zf.Name, "/") {
		return e.fs.MkdirAll(dest, 0o755)
	}

	if e.preserveConfig && utils.HasSegment(utils.JoinRel(target.RelPath, rel), "config") {
		if _, err := e.fs.Stat(dest); err == nil {
			e.events.Log(fmt.Sprintf("[preserved] keeping local %s", rel))
			return nil
		}
	}

	if err := e.fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	rc, err := zf.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", zf.Name, err)
	}
	defer rc.Close()

	f, err := e.fs.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, rc); err != nil {
		return fmt.Errorf("extract %s: %w", zf.Name, err)
	}
	return nil
}
