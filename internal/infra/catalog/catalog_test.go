package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/you-humble/camstage/internal/domain"
)

const sample = `
apps:
  - id: com.example.timer
    name: Timer
    release:
      version: "1.2"
      url: %s/timer.apk
  - id: com.example.draft
    name: Draft
  - id: com.example.gone
    name: Gone
    release:
      version: "0.1"
      url: %s/gone.apk
`

func newCatalog(t *testing.T) *fileCatalog {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/timer.apk" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("timer-apk"))
	}))
	t.Cleanup(srv.Close)

	c, err := Parse([]byte(fmt.Sprintf(sample, srv.URL, srv.URL)), srv.Client())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return c
}

func TestApp(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	app, err := c.App(ctx, "com.example.timer")
	if err != nil {
		t.Fatalf("App() error = %v", err)
	}
	if app.Name != "Timer" || !HasRelease(app) {
		t.Errorf("App() = %+v", app)
	}

	if _, err := c.App(ctx, "nope"); !errors.Is(err, domain.ErrAppNotFound) {
		t.Errorf("App(nope) error = %v, want ErrAppNotFound", err)
	}

	apps, err := c.Apps(ctx)
	if err != nil {
		t.Fatalf("Apps() error = %v", err)
	}
	if len(apps) != 3 || apps[0].ID != "com.example.draft" {
		t.Errorf("Apps() = %+v, want 3 apps sorted by id", apps)
	}
}

func TestOpenRelease(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	rc, _, err := c.OpenRelease(ctx, "com.example.timer")
	if err != nil {
		t.Fatalf("OpenRelease() error = %v", err)
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(body) != "timer-apk" {
		t.Errorf("asset = %q", body)
	}

	for _, id := range []string{"com.example.draft", "com.example.gone", "missing"} {
		if _, _, err := c.OpenRelease(ctx, id); !errors.Is(err, domain.ErrAppNotFound) {
			t.Errorf("OpenRelease(%s) error = %v, want ErrAppNotFound", id, err)
		}
	}
}

func TestParseRejectsBadCatalogs(t *testing.T) {
	tests := map[string]string{
		"missing id":   "apps:\n  - name: x\n",
		"duplicate id": "apps:\n  - id: a\n  - id: a\n",
		"bad yaml":     "apps: [",
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(data), nil); err == nil {
				t.Error("Parse() error = nil, want error")
			}
		})
	}
}
