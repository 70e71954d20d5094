package reconcile

import (
	"crypto/md5"
	"encoding/hex"
	"sync"
	"testing"

	"github.com/openmined/modsync/internal/manifest"
	"github.com/openmined/modsync/internal/routing"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const versionRoot = "/games/1.20.1"

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

func readFile(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	return string(data)
}

func exists(fs afero.Fs, path string) bool {
	ok, _ := afero.Exists(fs, path)
	return ok
}

type logSink struct {
	mu    sync.Mutex
	lines []string
}

func (l *logSink) log(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, msg)
}

func resolve(t *testing.T, folder string) routing.Target {
	t.Helper()
	target, err := routing.Resolve(versionRoot, folder)
	require.NoError(t, err)
	return target
}

func newScanner(fs afero.Fs, preserve bool) *Scanner {
	return NewScanner(&ScannerOpts{Fs: fs, PreserveConfig: preserve})
}

func TestScan_LenientEmptyDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	target := resolve(t, "resourcepacks")
	root := manifest.Dir(map[string]*manifest.Node{
		"a.txt": manifest.Leaf("h1"),
		"dir":   manifest.Dir(map[string]*manifest.Node{"b.txt": manifest.Leaf("h2")}),
	})

	res := newScanner(fs, false).Scan(target, root)

	assert.Equal(t, []string{"a.txt", "dir/b.txt"}, res.Tasks)
	assert.Equal(t, 2, res.Total)
	assert.InDelta(t, 1.0, res.Ratio(), 0.0001)
	assert.Empty(t, res.Deleted)

	isDir, err := afero.DirExists(fs, "/games/1.20.1/resourcepacks/dir")
	require.NoError(t, err)
	assert.True(t, isDir, "manifest directories are created during the scan")
}

func TestScan_StrictFullySyncedIsNoop(t *testing.T) {
	fs := afero.NewMemMapFs()
	target := resolve(t, "mods")
	writeFile(t, fs, "/games/1.20.1/mods/servermods/a.jar", "A")
	writeFile(t, fs, "/games/1.20.1/mods/servermods/lib/b.jar", "B")

	root := manifest.Dir(map[string]*manifest.Node{
		"a.jar": manifest.Leaf(md5hex("A")),
		"lib":   manifest.Dir(map[string]*manifest.Node{"b.jar": manifest.Leaf(md5hex("B"))}),
	})

	res := newScanner(fs, true).Scan(target, root)

	assert.Empty(t, res.Tasks)
	assert.Empty(t, res.Deleted)
	assert.Equal(t, "A", readFile(t, fs, "/games/1.20.1/mods/servermods/a.jar"))
	assert.Equal(t, "B", readFile(t, fs, "/games/1.20.1/mods/servermods/lib/b.jar"))
}

func TestScan_StrictDeletesExtraFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	target := resolve(t, "mods")
	writeFile(t, fs, "/games/1.20.1/mods/servermods/a.jar", "A")
	writeFile(t, fs, "/games/1.20.1/mods/servermods/c.txt", "extra")
	writeFile(t, fs, "/games/1.20.1/mods/servermods/old/d.jar", "extra")

	root := manifest.Dir(map[string]*manifest.Node{
		"a.jar": manifest.Leaf(md5hex("A")),
		"b.jar": manifest.Leaf(md5hex("B")),
	})

	res := newScanner(fs, false).Scan(target, root)

	assert.Equal(t, []string{"b.jar"}, res.Tasks)
	assert.Equal(t, []string{"c.txt", "old/d.jar"}, res.Deleted)
	assert.False(t, exists(fs, "/games/1.20.1/mods/servermods/c.txt"))
	assert.False(t, exists(fs, "/games/1.20.1/mods/servermods/old/d.jar"))
	assert.Equal(t, "A", readFile(t, fs, "/games/1.20.1/mods/servermods/a.jar"))
}

func TestScan_StaleFileRemovedAndQueued(t *testing.T) {
	fs := afero.NewMemMapFs()
	target := resolve(t, "shaderpacks")
	writeFile(t, fs, "/games/1.20.1/shaderpacks/pack.zip", "old")

	root := manifest.Dir(map[string]*manifest.Node{"pack.zip": manifest.Leaf(md5hex("new"))})

	res := newScanner(fs, false).Scan(target, root)

	assert.Equal(t, []string{"pack.zip"}, res.Tasks)
	assert.False(t, exists(fs, "/games/1.20.1/shaderpacks/pack.zip"))
}

func TestScan_LenientNeverDeletesUndeclared(t *testing.T) {
	fs := afero.NewMemMapFs()
	target := resolve(t, "clientmods")
	writeFile(t, fs, "/games/1.20.1/mods/mine.jar", "mine")
	writeFile(t, fs, "/games/1.20.1/mods/servermods/s.jar", "s")

	root := manifest.Dir(map[string]*manifest.Node{"c.jar": manifest.Leaf("hc")})

	res := newScanner(fs, false).Scan(target, root)

	assert.Equal(t, []string{"c.jar"}, res.Tasks)
	assert.Empty(t, res.Deleted)
	assert.True(t, exists(fs, "/games/1.20.1/mods/mine.jar"))
	assert.True(t, exists(fs, "/games/1.20.1/mods/servermods/s.jar"))
}

func TestScan_PreserveConfigKeepsExistingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	target := resolve(t, "config")
	writeFile(t, fs, "/games/1.20.1/config/x.cfg", "user edits")

	root := manifest.Dir(map[string]*manifest.Node{
		"x.cfg": manifest.Leaf(md5hex("server default")),
		"y.cfg": manifest.Leaf(md5hex("new file")),
	})

	sink := &logSink{}
	scanner := NewScanner(&ScannerOpts{Fs: fs, PreserveConfig: true, Log: sink.log})
	res := scanner.Scan(target, root)

	assert.Equal(t, []string{"y.cfg"}, res.Tasks, "missing config files are still downloaded")
	assert.Equal(t, "user edits", readFile(t, fs, "/games/1.20.1/config/x.cfg"))
	assert.Contains(t, sink.lines, "[preserved] keeping local x.cfg")
}

func TestScan_PreserveConfigAppliesToNestedSegments(t *testing.T) {
	fs := afero.NewMemMapFs()
	target := resolve(t, "defaults")
	writeFile(t, fs, "/games/1.20.1/defaults/Config/z.toml", "local")

	root := manifest.Dir(map[string]*manifest.Node{
		"Config": manifest.Dir(map[string]*manifest.Node{"z.toml": manifest.Leaf(md5hex("remote"))}),
	})

	res := newScanner(fs, true).Scan(target, root)
	assert.Empty(t, res.Tasks)
	assert.Equal(t, "local", readFile(t, fs, "/games/1.20.1/defaults/Config/z.toml"))
}

func TestScan_PreserveDisabledOverwritesConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	target := resolve(t, "config")
	writeFile(t, fs, "/games/1.20.1/config/x.cfg", "user edits")

	root := manifest.Dir(map[string]*manifest.Node{"x.cfg": manifest.Leaf(md5hex("server default"))})

	res := newScanner(fs, false).Scan(target, root)
	assert.Equal(t, []string{"x.cfg"}, res.Tasks)
	assert.False(t, exists(fs, "/games/1.20.1/config/x.cfg"))
}

func TestScan_StrictConfigBaseSkipsPruneWhenPreserving(t *testing.T) {
	fs := afero.NewMemMapFs()
	target := routing.Target{
		RemoteFolder: "config",
		LocalPath:    "/games/1.20.1/config",
		RelPath:      "config",
		Mode:         routing.Strict,
	}
	writeFile(t, fs, "/games/1.20.1/config/local-only.cfg", "mine")

	root := manifest.Dir(map[string]*manifest.Node{"server.cfg": manifest.Leaf("hs")})

	res := newScanner(fs, true).Scan(target, root)
	assert.Equal(t, []string{"server.cfg"}, res.Tasks)
	assert.Empty(t, res.Deleted)
	assert.True(t, exists(fs, "/games/1.20.1/config/local-only.cfg"))

	res = newScanner(fs, false).Scan(target, root)
	assert.Equal(t, []string{"local-only.cfg"}, res.Deleted)
}

func TestScan_IdempotentAfterDownloads(t *testing.T) {
	fs := afero.NewMemMapFs()
	target := resolve(t, "mods")
	contents := map[string]string{"a.jar": "A", "sub/b.jar": "B"}
	root := manifest.Dir(map[string]*manifest.Node{
		"a.jar": manifest.Leaf(md5hex("A")),
		"sub":   manifest.Dir(map[string]*manifest.Node{"b.jar": manifest.Leaf(md5hex("B"))}),
	})
	scanner := newScanner(fs, false)

	first := scanner.Scan(target, root)
	require.Equal(t, []string{"a.jar", "sub/b.jar"}, first.Tasks)
	for _, rel := range first.Tasks {
		writeFile(t, fs, "/games/1.20.1/mods/servermods/"+rel, contents[rel])
	}

	second := scanner.Scan(target, root)
	assert.Empty(t, second.Tasks)
	assert.Empty(t, second.Deleted)
}

func TestScan_ScanModeOverridesTargetMode(t *testing.T) {
	fs := afero.NewMemMapFs()
	target := resolve(t, "misc")
	writeFile(t, fs, "/games/1.20.1/misc/extra.txt", "x")

	res := newScanner(fs, false).ScanMode(target, manifest.Dir(nil), routing.Strict)
	assert.Equal(t, []string{"extra.txt"}, res.Deleted)
}

func TestResult_Ratio(t *testing.T) {
	assert.Equal(t, 0.0, (&Result{}).Ratio())
	assert.Equal(t, 0.0, (&Result{Tasks: []string{"a"}, Total: 0}).Ratio())
	assert.InDelta(t, 0.6, (&Result{Tasks: []string{"a", "b", "c"}, Total: 5}).Ratio(), 0.0001)
}

func TestScan_CustomHasherError(t *testing.T) {
	fs := afero.NewMemMapFs()
	target := resolve(t, "misc")
	writeFile(t, fs, "/games/1.20.1/misc/a.txt", "x")

	scanner := NewScanner(&ScannerOpts{
		Fs: fs,
		Hasher: func(afero.Fs, string) (string, error) {
			return "", assert.AnError
		},
	})
	res := scanner.Scan(target, manifest.Dir(map[string]*manifest.Node{"a.txt": manifest.Leaf(md5hex("x"))}))
	assert.Equal(t, []string{"a.txt"}, res.Tasks, "unreadable files are treated as stale")
}

func TestScan_IgnoresEntriesOutsideTarget(t *testing.T) {
	fs := afero.NewMemMapFs()
	target := resolve(t, "resourcepacks")
	writeFile(t, fs, "/games/1.20.1/options.txt", "keybinds")
	writeFile(t, fs, "/games/1.20.1/saves/world/level.dat", "world")

	sink := &logSink{}
	scanner := NewScanner(&ScannerOpts{Fs: fs, Log: sink.log})
	root := manifest.Dir(map[string]*manifest.Node{
		"../options.txt": manifest.Leaf("deadbeef"),
		"..": manifest.Dir(map[string]*manifest.Node{
			"saves": manifest.Dir(map[string]*manifest.Node{"world": manifest.Leaf("deadbeef")}),
		}),
		"pack.zip": manifest.Leaf(md5hex("pack")),
	})

	res := scanner.ScanMode(target, root, routing.Strict)
	assert.Equal(t, []string{"pack.zip"}, res.Tasks)
	assert.Empty(t, res.Deleted)

	assert.Equal(t, "keybinds", readFile(t, fs, "/games/1.20.1/options.txt"))
	assert.Equal(t, "world", readFile(t, fs, "/games/1.20.1/saves/world/level.dat"))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Contains(t, sink.lines, "[unsafe] ignoring ../options.txt, it leaves resourcepacks")
}
