package modsdk

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	return newTestClientWithConfig(t, handler, &Config{})
}

func newTestClientWithConfig(t *testing.T, handler http.HandlerFunc, cfg *Config) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg.BaseURL = srv.URL + "/"
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func TestConfig_Validate(t *testing.T) {
	t.Run("trims trailing slash and defaults timeout", func(t *testing.T) {
		cfg := &Config{BaseURL: " http://127.0.0.1:8080/ "}
		require.NoError(t, cfg.Validate())
		assert.Equal(t, "http://127.0.0.1:8080", cfg.BaseURL)
		assert.Equal(t, DefaultManifestTimeout, cfg.ManifestTimeout)
		assert.Equal(t, DefaultDialTimeout, cfg.DialTimeout)
		assert.Equal(t, DefaultResponseHeaderTimeout, cfg.ResponseHeaderTimeout)
		assert.Equal(t, DefaultIdleReadTimeout, cfg.IdleReadTimeout)
	})

	t.Run("missing base url fails", func(t *testing.T) {
		assert.ErrorIs(t, (&Config{}).Validate(), ErrNoServerURL)
	})

	t.Run("bad scheme fails", func(t *testing.T) {
		assert.ErrorIs(t, (&Config{BaseURL: "ftp://example.com"}).Validate(), ErrInvalidServerURL)
	})
}

func TestListFolders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/config_names", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("json"))
		assert.NotEmpty(t, r.Header.Get(HeaderModSyncVersion))
		w.Write([]byte(`["mods","config",7]`))
	})

	names, err := c.ListFolders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"mods", "config", "7"}, names)
}

func TestListFolders_ErrorStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.ListFolders(context.Background())
	require.Error(t, err)

	var sdkErr SDKError
	require.ErrorAs(t, err, &sdkErr)
	assert.Equal(t, CodeInternalError, sdkErr.ErrorCode())
}

func TestListFolders_Malformed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"a list"}`))
	})

	_, err := c.ListFolders(context.Background())
	assert.ErrorIs(t, err, ErrBadFolderList)
}

func TestGetManifest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mods/", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("json"))
		w.Write([]byte(`{"a.jar":"h1","lib":{"b.jar":"h2"}}`))
	})

	root, err := c.GetManifest(context.Background(), "mods")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jar", "lib/b.jar"}, root.Paths())
}

func TestGetManifest_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := c.GetManifest(context.Background(), "missing")
	assert.True(t, IsNotFound(err))
}

func TestOpenFile_EscapesPathAndStreams(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mods/sub dir/a b.jar", r.URL.Path)
		assert.Equal(t, "/mods/sub%20dir/a%20b.jar", r.URL.EscapedPath())
		assert.Equal(t, "1", r.URL.Query().Get("download"))
		w.Header().Set("Content-Length", "5")
		w.Write([]byte("hello"))
	})

	dl, err := c.OpenFile(context.Background(), "mods", "sub dir/a b.jar")
	require.NoError(t, err)
	defer dl.Close()

	assert.Equal(t, int64(5), dl.Size)
	data, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestOpenFile_AcceptsPartialContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("part"))
	})

	dl, err := c.OpenFile(context.Background(), "mods", "a.jar")
	require.NoError(t, err)
	defer dl.Close()
	assert.Equal(t, http.StatusPartialContent, dl.StatusCode)
}

func TestOpenFile_RejectsOtherStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	_, err := c.OpenFile(context.Background(), "mods", "a.jar")
	assert.Error(t, err)
}

func TestOpenFile_ServerNeverAnswers(t *testing.T) {
	c := newTestClientWithConfig(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}, &Config{ResponseHeaderTimeout: 100 * time.Millisecond})

	start := time.Now()
	_, err := c.OpenFile(context.Background(), "mods", "a.jar")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestOpenFile_StalledBody(t *testing.T) {
	c := newTestClientWithConfig(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "10")
		w.Write([]byte("he"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}, &Config{IdleReadTimeout: 100 * time.Millisecond})

	dl, err := c.OpenFile(context.Background(), "mods", "a.jar")
	require.NoError(t, err)
	defer dl.Close()

	_, err = io.ReadAll(dl.Body)
	assert.ErrorIs(t, err, ErrReadTimeout)
}

func TestIdleTimeoutBody_ProgressingReadsSucceed(t *testing.T) {
	body := newIdleTimeoutBody(io.NopCloser(&slowReader{r: strings.NewReader("abcdef"), delay: 20 * time.Millisecond}), 200*time.Millisecond)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(data))
}

// slowReader hands out one byte per delay.
type slowReader struct {
	r     io.Reader
	delay time.Duration
}

func (s *slowReader) Read(p []byte) (int, error) {
	time.Sleep(s.delay)
	if len(p) > 1 {
		p = p[:1]
	}
	return s.r.Read(p)
}

func TestOpenArchive(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mods", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("download"))
		w.Write([]byte("PK"))
	})

	dl, err := c.OpenArchive(context.Background(), "mods")
	require.NoError(t, err)
	dl.Close()
	assert.Equal(t, c.BaseURL()+"/mods?download=1", c.ArchiveURL("mods"))
}

func TestGetLatestVersion(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/clientupdate/version.txt", r.URL.Path)
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(`{"version":"1.3.0","note":"faster sync"}`))
	})

	info, err := c.GetLatestVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", info.Version)
	assert.Equal(t, "faster sync", info.Note)
	assert.Equal(t, c.BaseURL()+"/clientupdate", info.URL)
}

func TestUpdateInfo_NewerThan(t *testing.T) {
	tests := []struct {
		latest  string
		current string
		want    bool
	}{
		{latest: "1.3.0", current: "1.2.2", want: true},
		{latest: "1.2.2", current: "1.2.2", want: false},
		{latest: "1.2.0", current: "1.2.2", want: false},
		{latest: "beta", current: "1.2.2", want: true},
		{latest: "beta", current: "beta", want: false},
	}

	for _, tt := range tests {
		info := &UpdateInfo{Version: tt.latest}
		assert.Equal(t, tt.want, info.NewerThan(tt.current), "%s vs %s", tt.latest, tt.current)
	}
}
