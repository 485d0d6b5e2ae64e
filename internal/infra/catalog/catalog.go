package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/you-humble/camstage/internal/domain"

	"gopkg.in/yaml.v3"
)

type file struct {
	Apps []domain.App `yaml:"apps"`
}

// fileCatalog serves apps listed in a YAML file. Release assets are fetched
// over HTTP when a device downloads them.
type fileCatalog struct {
	apps   map[string]domain.App
	order  []string
	client *http.Client
}

func Load(path string, client *http.Client) (*fileCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %q: %w", path, err)
	}
	return Parse(data, client)
}

func Parse(data []byte, client *http.Client) (*fileCatalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: unmarshal yaml: %w", err)
	}

	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	c := &fileCatalog{
		apps:   make(map[string]domain.App, len(f.Apps)),
		client: client,
	}
	for i, app := range f.Apps {
		if app.ID == "" {
			return nil, fmt.Errorf("catalog: app #%d has no id", i)
		}
		if _, dup := c.apps[app.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate app id %q", app.ID)
		}
		c.apps[app.ID] = app
		c.order = append(c.order, app.ID)
	}
	sort.Strings(c.order)

	return c, nil
}

func (c *fileCatalog) App(ctx context.Context, appID string) (domain.App, error) {
	app, ok := c.apps[appID]
	if !ok {
		return domain.App{}, fmt.Errorf("app %q: %w", appID, domain.ErrAppNotFound)
	}
	return app, nil
}

func (c *fileCatalog) Apps(ctx context.Context) ([]domain.App, error) {
	apps := make([]domain.App, 0, len(c.order))
	for _, id := range c.order {
		apps = append(apps, c.apps[id])
	}
	return apps, nil
}

// OpenRelease streams the app's release asset. A missing release or a 404
// from the asset host is reported as ErrAppNotFound.
func (c *fileCatalog) OpenRelease(ctx context.Context, appID string) (io.ReadCloser, int64, error) {
	app, err := c.App(ctx, appID)
	if err != nil {
		return nil, 0, err
	}
	if !HasRelease(app) {
		return nil, 0, fmt.Errorf("app %q has no release: %w", appID, domain.ErrAppNotFound)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, app.Release.URL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("release request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch release %s: %w", app.Release.URL, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, 0, fmt.Errorf("release asset of %q: %w", appID, domain.ErrAppNotFound)
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, 0, fmt.Errorf("fetch release %s: unexpected status %s", app.Release.URL, resp.Status)
	}

	return resp.Body, resp.ContentLength, nil
}

func HasRelease(app domain.App) bool {
	return app.Release != nil && app.Release.URL != ""
}
