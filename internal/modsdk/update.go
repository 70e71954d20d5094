package modsdk

import (
	"context"
	"fmt"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// GetLatestVersion reads the release announcement of the client.
func (c *Client) GetLatestVersion(ctx context.Context) (*UpdateInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.manifestTimeout)
	defer cancel()

	resp, err := c.client.R().
		SetContext(ctx).
		Get(c.url(pathUpdateInfo))
	if err := handleAPIError(resp, err, "get latest version"); err != nil {
		return nil, err
	}

	var info UpdateInfo
	if err := jsonUnmarshal(resp.Bytes(), &info); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadUpdateInfo, err)
	}
	if info.Version == "" {
		info.Version = "0.0.0"
	}
	info.URL = c.url(pathUpdatePage)
	return &info, nil
}

// NewerThan reports whether the announced version should be offered over
// current. Semantic versions are compared numerically; anything unparsable
// falls back to a plain inequality check.
func (u *UpdateInfo) NewerThan(current string) bool {
	latest := strings.TrimSpace(u.Version)
	current = strings.TrimSpace(current)

	lv, lerr := goversion.NewVersion(latest)
	cv, cerr := goversion.NewVersion(current)
	if lerr != nil || cerr != nil {
		return latest != current
	}
	return lv.GreaterThan(cv)
}
