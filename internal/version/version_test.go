package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func restore(t *testing.T) {
	origVersion, origRevision, origBuildDate := Version, Revision, BuildDate
	t.Cleanup(func() {
		Version, Revision, BuildDate = origVersion, origRevision, origBuildDate
	})
}

func TestVersionStrings(t *testing.T) {
	assert.NotEmpty(t, Version)
	assert.NotEmpty(t, Revision)

	assert.Contains(t, Short(), Version)
	assert.True(t, strings.HasPrefix(ShortWithApp(), AppName+" "))
	assert.Contains(t, Detailed(), "/")
	assert.True(t, strings.HasPrefix(DetailedWithApp(), AppName+" "))
}

func TestApplyBuildInfo_PopulatesDefaults(t *testing.T) {
	restore(t)
	Version, Revision, BuildDate = devVersion, "HEAD", ""

	applyBuildInfo("v9.9.9", map[string]string{
		"vcs.revision": "abcdef1234567890",
		"vcs.modified": "true",
		"vcs.time":     "2025-12-12T01:00:00Z",
	})

	assert.Equal(t, "9.9.9", Version)
	assert.Equal(t, "abcdef123456-dirty", Revision)
	assert.Equal(t, "2025-12-12T01:00:00Z", BuildDate)
}

func TestApplyBuildInfo_KeepsLdflags(t *testing.T) {
	restore(t)
	Version, Revision, BuildDate = "2.0.0", "cafe", "yesterday"

	applyBuildInfo("v9.9.9", map[string]string{
		"vcs.revision": "abcdef1234567890",
		"vcs.time":     "2025-12-12T01:00:00Z",
	})

	assert.Equal(t, "2.0.0", Version)
	assert.Equal(t, "cafe", Revision)
	assert.Equal(t, "yesterday", BuildDate)
}

func TestApplyBuildInfo_IgnoresDevelModule(t *testing.T) {
	restore(t)
	Version = devVersion

	applyBuildInfo("(devel)", nil)
	assert.Equal(t, devVersion, Version)
}
