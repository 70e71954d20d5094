package files

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/openmined/modsync/internal/server/library"
	"github.com/openmined/modsync/internal/utils"
)

// FolderListName is the reserved folder name that lists every sync folder.
const FolderListName = "config_names"

type FilesHandler struct {
	lib *library.Library
}

func New(lib *library.Library) *FilesHandler {
	return &FilesHandler{
		lib: lib,
	}
}

// Folder serves GET /:folder. It lists folders, streams a folder archive when
// download=1 is set, and returns the folder manifest otherwise.
func (h *FilesHandler) Folder(ctx *gin.Context) {
	folder := ctx.Param("folder")

	if folder == FolderListName {
		h.folderNames(ctx)
		return
	}

	if ctx.Query("download") == "1" {
		h.archive(ctx, folder)
		return
	}

	h.manifest(ctx, folder, "")
}

// Path serves GET /:folder/*path: manifests for directories, bytes for files.
func (h *FilesHandler) Path(ctx *gin.Context) {
	folder := ctx.Param("folder")
	rel := strings.TrimPrefix(ctx.Param("path"), "/")

	if folder == FolderListName && rel == "" {
		h.folderNames(ctx)
		return
	}

	if rel == "" {
		h.manifest(ctx, folder, "")
		return
	}

	_, info, err := h.lib.Stat(folder, rel)
	if err != nil {
		fail(ctx, err)
		return
	}

	if info.IsDir() {
		h.manifest(ctx, folder, rel)
		return
	}

	h.download(ctx, folder, rel)
}

func (h *FilesHandler) folderNames(ctx *gin.Context) {
	folders, err := h.lib.Folders()
	if err != nil {
		fail(ctx, err)
		return
	}
	ctx.PureJSON(http.StatusOK, folders)
}

func (h *FilesHandler) manifest(ctx *gin.Context, folder, rel string) {
	node, err := h.lib.Manifest(folder, rel)
	if err != nil {
		fail(ctx, err)
		return
	}
	ctx.PureJSON(http.StatusOK, node)
}

func (h *FilesHandler) download(ctx *gin.Context, folder, rel string) {
	f, info, err := h.lib.Open(folder, rel)
	if err != nil {
		fail(ctx, err)
		return
	}
	defer f.Close()

	ctx.DataFromReader(http.StatusOK, info.Size(), utils.DetectContentType(rel), f, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, info.Name()),
	})
}

func (h *FilesHandler) archive(ctx *gin.Context, folder string) {
	if _, info, err := h.lib.Stat(folder, ""); err != nil {
		fail(ctx, err)
		return
	} else if !info.IsDir() {
		fail(ctx, library.ErrInvalidPath)
		return
	}

	ctx.Header("Content-Type", "application/zip")
	ctx.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.zip"`, folder))
	ctx.Status(http.StatusOK)

	// headers are already out, so a failure here can only be logged
	if err := h.lib.WriteArchive(ctx.Writer, folder); err != nil {
		ctx.Error(err)
		slog.Error("archive write", "folder", folder, "error", err)
	}
}

func fail(ctx *gin.Context, err error) {
	ctx.Error(err)

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, library.ErrInvalidPath):
		status = http.StatusBadRequest
	case errors.Is(err, library.ErrNotFound):
		status = http.StatusNotFound
	}

	ctx.PureJSON(status, gin.H{
		"error": err.Error(),
	})
}
