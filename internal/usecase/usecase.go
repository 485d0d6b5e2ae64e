package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/you-humble/camstage/internal/domain"
	"github.com/you-humble/camstage/internal/metrics"

	"github.com/google/uuid"
)

type TaskStore interface {
	CreateTask(ctx context.Context, p domain.CreateTaskParams) (string, error)
	Task(ctx context.Context, id string) (domain.Task, error)
}

type BlobStore interface {
	Save(ctx context.Context, reader io.Reader, key string, size int64) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Stat(ctx context.Context, key string) (int64, error)
}

type Catalog interface {
	App(ctx context.Context, appID string) (domain.App, error)
	Apps(ctx context.Context) ([]domain.App, error)
	OpenRelease(ctx context.Context, appID string) (io.ReadCloser, int64, error)
}

type Converter interface {
	Convert(ctx context.Context, pkg []byte) (domain.Container, error)
}

type Codec interface {
	DecodeForDisplay(raw []byte) (any, error)
}

type usecase struct {
	convertTimeout time.Duration
	taskStore      TaskStore
	blobStore      BlobStore
	catalog        Catalog
	converter      Converter
	codec          Codec
	now            func() time.Time
}

func New(
	convertTimeout time.Duration,
	taskStore TaskStore,
	blobStore BlobStore,
	catalog Catalog,
	converter Converter,
	codec Codec,
) *usecase {
	return &usecase{
		convertTimeout: convertTimeout,
		taskStore:      taskStore,
		blobStore:      blobStore,
		catalog:        catalog,
		converter:      converter,
		codec:          codec,
		now:            time.Now,
	}
}

// Start creates a task for a future device connection. Blob and app intents
// are checked up front so a typo fails in the browser, not on the camera.
func (uc *usecase) Start(ctx context.Context, intent domain.Intent) (string, error) {
	label := "none"
	switch in := intent.(type) {
	case domain.BlobIntent:
		label = "blob"
		if _, err := uc.blobStore.Stat(ctx, in.Key); err != nil {
			return "", err
		}
	case domain.AppIntent:
		label = "app"
		if _, err := uc.catalog.App(ctx, in.AppID); err != nil {
			return "", err
		}
	}

	id, err := uc.taskStore.CreateTask(ctx, domain.CreateTaskParams{
		Intent:    intent,
		CreatedAt: uc.now(),
	})
	if err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}

	metrics.RecordTaskStarted(label)
	slog.Info("task started", slog.String("task_id", id), slog.String("intent", label))

	return id, nil
}

func (uc *usecase) Status(ctx context.Context, taskID string) (domain.StatusResponse, error) {
	task, err := uc.taskStore.Task(ctx, taskID)
	if err != nil {
		return domain.StatusResponse{}, err
	}

	resp := domain.StatusResponse{ID: task.ID}

	c, ok := task.Completed()
	if !ok {
		return resp, nil
	}

	resp.Completed = true
	resp.Response, err = uc.codec.DecodeForDisplay(c.RawResponse)
	if err != nil {
		slog.Warn("stored response is not displayable",
			slog.String("task_id", task.ID),
			slog.String("error", err.Error()),
		)
		resp.Response = string(c.RawResponse)
	}

	return resp, nil
}

func (uc *usecase) Upload(ctx context.Context, file io.Reader, filename string, size int64) (string, error) {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != ".apk" {
		return "", domain.ErrUnsupportedFile
	}

	key := uuid.NewString()
	written, err := uc.blobStore.Save(ctx, file, key, size)
	if err != nil {
		return "", fmt.Errorf("save blob: %w", err)
	}

	slog.Info("package uploaded",
		slog.String("key", key),
		slog.String("file_name", filename),
		slog.Int64("size", written),
	)

	return key, nil
}

func (uc *usecase) Apps(ctx context.Context) ([]domain.App, error) {
	return uc.catalog.Apps(ctx)
}

func (uc *usecase) BlobContainer(ctx context.Context, key string) (domain.DownloadResult, error) {
	rc, _, err := uc.blobStore.Open(ctx, key)
	if err != nil {
		return domain.DownloadResult{}, err
	}
	defer rc.Close()

	return uc.convert(ctx, rc)
}

func (uc *usecase) AppContainer(ctx context.Context, appID string) (domain.DownloadResult, error) {
	rc, _, err := uc.catalog.OpenRelease(ctx, appID)
	if err != nil {
		return domain.DownloadResult{}, err
	}
	defer rc.Close()

	return uc.convert(ctx, rc)
}

func (uc *usecase) convert(ctx context.Context, pkg io.Reader) (domain.DownloadResult, error) {
	data, err := io.ReadAll(pkg)
	if err != nil {
		return domain.DownloadResult{}, fmt.Errorf("read package: %w", err)
	}

	if uc.convertTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.convertTimeout)
		defer cancel()
	}

	c, err := uc.converter.Convert(ctx, data)
	if err != nil {
		return domain.DownloadResult{}, fmt.Errorf("convert package: %w", err)
	}

	return domain.DownloadResult{
		FileName:  "app" + c.Extension,
		MediaType: c.MediaType,
		Size:      int64(len(c.Data)),
		Content:   bytes.NewReader(c.Data),
	}, nil
}
