package modsdk

import (
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/openmined/modsync/internal/version"
)

const (
	HeaderUserAgent      = "User-Agent"
	HeaderModSyncVersion = "X-ModSync-Version"
	HeaderDeviceId       = "X-ModSync-Device-Id"
)

const (
	DefaultManifestTimeout       = 10 * time.Second
	DefaultDialTimeout           = 10 * time.Second
	DefaultResponseHeaderTimeout = 15 * time.Second
	DefaultIdleReadTimeout       = 30 * time.Second

	pathFolderNames = "config_names"
	pathUpdateInfo  = "clientupdate/version.txt"
	pathUpdatePage  = "clientupdate"
)

var ModSyncUserAgent = fmt.Sprintf("ModSync/%s (%s; %s; %s)", version.Version, version.Revision, runtime.GOOS, runtime.GOARCH)

// Download is an open streaming response. The caller owns Body and must close it.
type Download struct {
	Body       io.ReadCloser
	Size       int64 // -1 when the server did not declare a length
	StatusCode int
}

func (d *Download) Close() error {
	if d == nil || d.Body == nil {
		return nil
	}
	return d.Body.Close()
}

// UpdateInfo is the release announcement published next to the client binaries.
type UpdateInfo struct {
	Version string `json:"version"`
	Note    string `json:"note"`
	URL     string `json:"-"`
}
