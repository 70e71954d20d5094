// Package modsdk is the client for the mod distribution server: folder
// listings, per-folder manifests, streamed file and archive downloads, and the
// client update announcement.
package modsdk

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/modsync/internal/manifest"
	"github.com/openmined/modsync/internal/utils"
	"github.com/openmined/modsync/internal/version"
)

// Client talks to a single mod server.
type Client struct {
	client          *req.Client
	baseURL         string
	manifestTimeout time.Duration
	idleReadTimeout time.Duration
}

// New creates a client for cfg.BaseURL. Retries are left to callers so that
// every attempt is visible to them. A stalled connection always surfaces as an
// error: dialing, waiting for headers and every body read are bounded.
func New(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := req.C().
		SetTimeout(0).
		SetUserAgent(ModSyncUserAgent).
		SetCommonHeader(HeaderModSyncVersion, version.Version).
		SetCommonHeader(HeaderDeviceId, utils.HWID).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal).
		SetDial((&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext)
	client.GetTransport().
		SetResponseHeaderTimeout(cfg.ResponseHeaderTimeout).
		SetTLSHandshakeTimeout(cfg.DialTimeout)

	return &Client{
		client:          client,
		baseURL:         cfg.BaseURL,
		manifestTimeout: cfg.ManifestTimeout,
		idleReadTimeout: cfg.IdleReadTimeout,
	}, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListFolders returns the names of the top-level folders the server publishes.
func (c *Client) ListFolders(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.manifestTimeout)
	defer cancel()

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("json", "1").
		Get(c.url(pathFolderNames))
	if err := handleAPIError(resp, err, "list folders"); err != nil {
		return nil, err
	}

	var raw []any
	if err := jsonUnmarshal(resp.Bytes(), &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadFolderList, err)
	}

	names := make([]string, 0, len(raw))
	for _, v := range raw {
		switch name := v.(type) {
		case string:
			names = append(names, name)
		case nil:
			continue
		default:
			names = append(names, fmt.Sprint(name))
		}
	}
	return names, nil
}

// GetManifest fetches the current manifest of folder.
func (c *Client) GetManifest(ctx context.Context, folder string) (*manifest.Node, error) {
	ctx, cancel := context.WithTimeout(ctx, c.manifestTimeout)
	defer cancel()

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("json", "1").
		Get(c.url(escapeSegment(folder)) + "/")
	if err := handleAPIError(resp, err, "get manifest "+folder); err != nil {
		return nil, err
	}

	root, err := manifest.Parse(resp.Bytes())
	if err != nil {
		return nil, fmt.Errorf("sdk: get manifest %s: %w", folder, err)
	}
	return root, nil
}

// OpenFile starts streaming relPath of folder. Only 200 and 206 are accepted.
func (c *Client) OpenFile(ctx context.Context, folder, relPath string) (*Download, error) {
	return c.open(ctx, c.url(escapeSegment(folder), escapePath(relPath)), "download "+folder+"/"+relPath, http.StatusOK, http.StatusPartialContent)
}

// OpenArchive starts streaming the zip archive of an entire folder.
func (c *Client) OpenArchive(ctx context.Context, folder string) (*Download, error) {
	return c.open(ctx, c.url(escapeSegment(folder)), "download archive "+folder, http.StatusOK)
}

// ArchiveURL is the bulk endpoint of folder, for display purposes.
func (c *Client) ArchiveURL(folder string) string {
	return c.url(escapeSegment(folder)) + "?download=1"
}

func (c *Client) open(ctx context.Context, rawURL, operation string, ok ...int) (*Download, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		DisableAutoReadResponse().
		SetQueryParam("download", "1").
		Get(rawURL)
	if err := handleAPIError(resp, err, operation, ok...); err != nil {
		if resp != nil && resp.Response != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, err
	}

	return &Download{
		Body:       newIdleTimeoutBody(resp.Body, c.idleReadTimeout),
		Size:       resp.ContentLength,
		StatusCode: resp.StatusCode,
	}, nil
}

func (c *Client) url(parts ...string) string {
	return c.baseURL + "/" + strings.Join(parts, "/")
}

func escapeSegment(s string) string {
	return url.PathEscape(s)
}

// escapePath escapes each segment of a "/" separated path and keeps the separators.
func escapePath(p string) string {
	segments := strings.Split(utils.NormPath(p), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
