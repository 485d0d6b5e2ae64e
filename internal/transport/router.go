package transport

import (
	"net/http"

	"github.com/you-humble/camstage/internal/links"
)

type Handler interface {
	uploadURL(w http.ResponseWriter, r *http.Request)
	upload(w http.ResponseWriter, r *http.Request)
	start(w http.ResponseWriter, r *http.Request)
	startBlob(w http.ResponseWriter, r *http.Request)
	startApp(w http.ResponseWriter, r *http.Request)
	status(w http.ResponseWriter, r *http.Request)
	descriptor(w http.ResponseWriter, r *http.Request)
	callback(w http.ResponseWriter, r *http.Request)
	downloadBlob(w http.ResponseWriter, r *http.Request)
	downloadApp(w http.ResponseWriter, r *http.Request)
	apps(w http.ResponseWriter, r *http.Request)
	cleanup(w http.ResponseWriter, r *http.Request)
	health(w http.ResponseWriter, r *http.Request)
}

type router struct {
	h       Handler
	metrics http.Handler
}

func NewRouter(h Handler, metrics http.Handler) *router {
	return &router{h: h, metrics: metrics}
}

func (r *router) MountRoutes(mux *http.ServeMux) *http.ServeMux {
	mux.HandleFunc("GET "+links.UploadPath, r.h.uploadURL)
	mux.HandleFunc("POST "+links.UploadPath, r.h.upload)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		mux.HandleFunc(method+" /ajax/task/start", r.h.start)
		mux.HandleFunc(method+" /ajax/task/start/blob/{key}", r.h.startBlob)
		mux.HandleFunc(method+" /ajax/task/start/app/{appId}", r.h.startApp)
	}
	mux.HandleFunc("GET /ajax/task/get/{id}", r.h.status)

	mux.HandleFunc("GET "+links.DescriptorPath+"{id}", r.h.descriptor)
	mux.HandleFunc("POST "+links.CallbackPath, r.h.callback)
	mux.HandleFunc("GET "+links.BlobDownloadPath+"{key}", r.h.downloadBlob)
	mux.HandleFunc("GET "+links.AppDownloadPath+"{appId}", r.h.downloadApp)

	mux.HandleFunc("GET /apps", r.h.apps)
	mux.HandleFunc("GET /cleanup", r.h.cleanup)
	mux.HandleFunc("GET /health", r.h.health)
	if r.metrics != nil {
		mux.Handle("GET /metrics", r.metrics)
	}

	return mux
}
