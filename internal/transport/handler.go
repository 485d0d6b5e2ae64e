package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/you-humble/camstage/internal/domain"
	"github.com/you-humble/camstage/internal/links"

	"github.com/google/uuid"
)

const maxCallbackBytes = 1 << 20

type Usecase interface {
	Start(ctx context.Context, intent domain.Intent) (string, error)
	Status(ctx context.Context, taskID string) (domain.StatusResponse, error)
	Upload(ctx context.Context, file io.Reader, filename string, size int64) (string, error)
	Apps(ctx context.Context) ([]domain.App, error)
	BlobContainer(ctx context.Context, key string) (domain.DownloadResult, error)
	AppContainer(ctx context.Context, appID string) (domain.DownloadResult, error)
}

type Handshake interface {
	Descriptor(ctx context.Context, taskID string) (domain.Document, error)
	Callback(ctx context.Context, body []byte) (domain.Document, error)
}

type Sweeper interface {
	Sweep(ctx context.Context) (domain.SweepReport, error)
}

type Links interface {
	Upload() string
}

type handler struct {
	maxUploadBytes int64
	usecase        Usecase
	handshake      Handshake
	sweeper        Sweeper
	links          Links
}

func NewHandler(
	maxUploadBytesMb int64,
	uc Usecase,
	hs Handshake,
	sw Sweeper,
	l Links,
) *handler {
	return &handler{
		maxUploadBytes: maxUploadBytesMb << 20,
		usecase:        uc,
		handshake:      hs,
		sweeper:        sw,
		links:          l,
	}
}

func requestLogger(r *http.Request, name string) *slog.Logger {
	return slog.With(
		slog.String("request_id", uuid.NewString()),
		slog.String("handler", name),
		slog.String("remote_addr", r.RemoteAddr),
	)
}

func (h *handler) uploadURL(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, domain.UploadURLResponse{URL: h.links.Upload()})
}

func (h *handler) upload(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "upload")

	defer r.Body.Close()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		logger.Error("ParseMultipartForm", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "unable to parse multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		logger.Warn("missing file field")
		writeError(w, http.StatusBadRequest, "field `file` is required")
		return
	}
	defer file.Close()

	logger = logger.With(slog.String("file_name", header.Filename))

	key, err := h.usecase.Upload(r.Context(), file, header.Filename, header.Size)
	if err != nil {
		writeDomainError(w, logger, "Upload", err)
		return
	}

	writeJSON(w, http.StatusOK, domain.UploadResponse{Key: key})
}

func (h *handler) start(w http.ResponseWriter, r *http.Request) {
	h.startWith(w, r, nil)
}

func (h *handler) startBlob(w http.ResponseWriter, r *http.Request) {
	h.startWith(w, r, domain.BlobIntent{Key: r.PathValue("key")})
}

func (h *handler) startApp(w http.ResponseWriter, r *http.Request) {
	h.startWith(w, r, domain.AppIntent{AppID: r.PathValue("appId")})
}

func (h *handler) startWith(w http.ResponseWriter, r *http.Request, intent domain.Intent) {
	logger := requestLogger(r, "start")

	id, err := h.usecase.Start(r.Context(), intent)
	if err != nil {
		writeDomainError(w, logger, "Start", err)
		return
	}

	writeJSON(w, http.StatusOK, domain.StartResponse{ID: id})
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "status")

	resp, err := h.usecase.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, logger, "Status", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) descriptor(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "descriptor")

	doc, err := h.handshake.Descriptor(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, logger, "Descriptor", err)
		return
	}

	writeDocument(w, logger, doc)
}

func (h *handler) callback(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "callback")

	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBytes))
	if err != nil {
		logger.Warn("read callback body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "unable to read body")
		return
	}

	doc, err := h.handshake.Callback(r.Context(), body)
	if err != nil {
		writeDomainError(w, logger, "Callback", err)
		return
	}

	writeDocument(w, logger, doc)
}

func (h *handler) downloadBlob(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "download_blob")
	key := r.PathValue("key")

	result, err := h.usecase.BlobContainer(r.Context(), key)
	if err != nil {
		writeDomainError(w, logger, "BlobContainer", err)
		return
	}

	h.sendFile(w, r, logger, result)
}

func (h *handler) downloadApp(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "download_app")

	result, err := h.usecase.AppContainer(r.Context(), r.PathValue("appId"))
	if err != nil {
		writeDomainError(w, logger, "AppContainer", err)
		return
	}

	h.sendFile(w, r, logger, result)
}

func (h *handler) sendFile(w http.ResponseWriter, r *http.Request, logger *slog.Logger, result domain.DownloadResult) {
	if taskID := r.URL.Query().Get(links.TaskQueryParam); taskID != "" {
		logger = logger.With(slog.String("task_id", taskID))
	}

	w.Header().Set("Content-Type", result.MediaType)
	w.Header().Set("Content-Disposition",
		`attachment; filename="`+result.FileName+`"`)
	if result.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(result.Size, 10))
	}

	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, result.Content); err != nil {
		logger.Error("download: send file", slog.String("error", err.Error()))
		return
	}
	logger.Info("container downloaded", slog.Int64("size", result.Size))
}

func (h *handler) apps(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "apps")

	apps, err := h.usecase.Apps(r.Context())
	if err != nil {
		writeDomainError(w, logger, "Apps", err)
		return
	}

	writeJSON(w, http.StatusOK, apps)
}

func (h *handler) cleanup(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "cleanup")

	report, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		writeDomainError(w, logger, "Sweep", err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeDomainError maps sentinel errors to a status code. Anything unknown is
// logged and reported as 500.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, domain.ErrBlobNotFound):
		writeError(w, http.StatusNotFound, "blob not found")
	case errors.Is(err, domain.ErrAppNotFound):
		writeError(w, http.StatusNotFound, "app not found")
	case errors.Is(err, domain.ErrDecode):
		logger.Warn(op, slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, domain.ErrDecode.Error())
	case errors.Is(err, domain.ErrUnsupportedFile):
		writeError(w, http.StatusBadRequest, domain.ErrUnsupportedFile.Error())
	case errors.Is(err, domain.ErrInvalidPackage):
		logger.Warn(op, slog.String("error", err.Error()))
		writeError(w, http.StatusUnprocessableEntity, domain.ErrInvalidPackage.Error())
	default:
		logger.Error(op, slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "")
	}
}

func writeDocument(w http.ResponseWriter, logger *slog.Logger, doc domain.Document) {
	w.Header().Set("Content-Type", doc.MediaType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc.Body); err != nil {
		logger.Error("writeDocument", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	resp := domain.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writeJSON", slog.String("error", err.Error()))
	}
}
