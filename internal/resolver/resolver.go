// Package resolver decides which install action a device is offered for a
// task. It reads the task's intent and never changes task state.
package resolver

import (
	"context"
	"fmt"

	"github.com/you-humble/camstage/internal/domain"
)

type Catalog interface {
	App(ctx context.Context, appID string) (domain.App, error)
}

type Links interface {
	BlobDownload(key, taskID string) string
	AppDownload(appID, taskID string) string
}

type resolver struct {
	catalog Catalog
	links   Links
}

func New(catalog Catalog, links Links) *resolver {
	return &resolver{catalog: catalog, links: links}
}

func (r *resolver) Resolve(ctx context.Context, task domain.Task) (domain.Action, error) {
	switch in := task.Intent.(type) {
	case nil:
		return domain.Action{Kind: domain.ActionAcknowledge}, nil

	case domain.BlobIntent:
		return domain.Action{
			Kind:        domain.ActionInstallFromBinary,
			DownloadURL: r.links.BlobDownload(in.Key, task.ID),
		}, nil

	case domain.AppIntent:
		app, err := r.catalog.App(ctx, in.AppID)
		if err != nil {
			return domain.Action{}, err
		}
		if app.Release == nil || app.Release.URL == "" {
			return domain.Action{}, fmt.Errorf("app %q has no release asset: %w", in.AppID, domain.ErrAppNotFound)
		}
		return domain.Action{
			Kind:        domain.ActionInstallFromCatalog,
			DownloadURL: r.links.AppDownload(in.AppID, task.ID),
		}, nil

	default:
		return domain.Action{}, fmt.Errorf("task %s: unsupported intent %T", task.ID, task.Intent)
	}
}
