// Package routing maps remote top-level folders onto directories below a
// local version root together with the sync mode that governs them.
package routing

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/openmined/modsync/internal/utils"
)

var ErrUnsafeFolder = errors.New("folder name leaves the version directory")

// Mode selects how a target is reconciled.
type Mode int

const (
	// Lenient downloads missing or stale files and never deletes extras.
	Lenient Mode = iota
	// Strict makes the local set of files match the manifest exactly.
	Strict
)

func (m Mode) String() string {
	if m == Strict {
		return "strict"
	}
	return "lenient"
}

// Target is the resolved destination of one remote folder.
type Target struct {
	RemoteFolder string // folder name as listed by the server
	LocalPath    string // absolute destination directory
	RelPath      string // destination relative to the version root, "/" separated
	Mode         Mode
}

// BaseName is the final segment of the destination directory.
func (t Target) BaseName() string {
	return filepath.Base(t.LocalPath)
}

type rule struct {
	rel  string
	mode Mode
}

// NOTE: clientmods and needmods look swapped relative to their names. This is
// the mapping clients have always used, so keep it until the server side says
// otherwise.
var rules = map[string]rule{
	"mods":       {rel: "mods/servermods", mode: Strict},
	"clientmods": {rel: "mods", mode: Lenient},
	"needmods":   {rel: "mods/clientmods", mode: Strict},
}

// Resolve returns the target for remoteFolder below versionRoot. Names are
// matched case-insensitively and unknown names map onto a lenient directory of
// the same name. Names that would resolve to the version root itself or
// outside of it are rejected.
func Resolve(versionRoot, remoteFolder string) (Target, error) {
	r, ok := rules[strings.ToLower(remoteFolder)]
	if !ok {
		r = rule{rel: utils.NormPath(remoteFolder), mode: Lenient}
	}

	localPath := utils.LocalPath(versionRoot, r.rel)
	if r.rel == "" || !utils.IsWithin(versionRoot, localPath) {
		return Target{}, fmt.Errorf("%w: %q", ErrUnsafeFolder, remoteFolder)
	}

	return Target{
		RemoteFolder: remoteFolder,
		LocalPath:    localPath,
		RelPath:      r.rel,
		Mode:         r.mode,
	}, nil
}

// StandardDirs lists directories that are created up front whenever a version
// root is prepared, so both mod destinations exist even before the first sync.
func StandardDirs(versionRoot string) []string {
	return []string{
		utils.LocalPath(versionRoot, "mods/servermods"),
		utils.LocalPath(versionRoot, "mods/clientmods"),
	}
}
