// Package links builds the absolute URLs handed to the device. Route paths
// live here so the router and the URL builders cannot drift apart.
package links

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	DescriptorPath   = "/camera/xpd/"
	CallbackPath     = "/camera/portal"
	BlobDownloadPath = "/download/spk/blob/"
	AppDownloadPath  = "/download/spk/app/"
	UploadPath       = "/ajax/upload"

	// TaskQueryParam carries the task id on download URLs for tracing.
	TaskQueryParam = "task"
)

type Links struct {
	base *url.URL
}

func New(baseURL string) (*Links, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base url %q: empty host", baseURL)
	}

	return &Links{base: u}, nil
}

// Callback is always https: the installer client refuses plain http portals.
func (l *Links) Callback() string {
	u := l.resolve(CallbackPath, "")
	u.Scheme = "https"
	return u.String()
}

func (l *Links) Upload() string {
	return l.resolve(UploadPath, "").String()
}

func (l *Links) Descriptor(taskID string) string {
	return l.resolve(DescriptorPath, taskID).String()
}

func (l *Links) BlobDownload(key, taskID string) string {
	return l.withTask(l.resolve(BlobDownloadPath, key), taskID)
}

func (l *Links) AppDownload(appID, taskID string) string {
	return l.withTask(l.resolve(AppDownloadPath, appID), taskID)
}

func (l *Links) resolve(prefix, segment string) *url.URL {
	u := *l.base
	u.Path = l.base.Path + prefix + segment
	u.RawPath = l.base.EscapedPath() + prefix + url.PathEscape(segment)
	return &u
}

func (l *Links) withTask(u *url.URL, taskID string) string {
	if taskID != "" {
		u.RawQuery = url.Values{TaskQueryParam: {taskID}}.Encode()
	}
	return u.String()
}
