package domain

import (
	"errors"
	"io"
	"time"
)

// Intent is what a task was created to install. A nil Intent means the task
// only acknowledges the device.
type Intent interface {
	intent()
}

// BlobIntent installs a previously uploaded package.
type BlobIntent struct {
	Key string
}

// AppIntent installs the current release of a catalog app.
type AppIntent struct {
	AppID string
}

func (BlobIntent) intent() {}
func (AppIntent) intent()  {}

// State is either Created or Completed.
type State interface {
	state()
}

type Created struct{}

// Completed holds the device callback body verbatim.
type Completed struct {
	RawResponse []byte
	CompletedAt time.Time
}

func (Created) state()   {}
func (Completed) state() {}

type Task struct {
	ID        string
	Intent    Intent
	CreatedAt time.Time
	State     State
}

func (t Task) Completed() (Completed, bool) {
	c, ok := t.State.(Completed)
	return c, ok
}

type CreateTaskParams struct {
	Intent    Intent
	CreatedAt time.Time
}

type ActionKind string

const (
	ActionAcknowledge        ActionKind = "acknowledge"
	ActionInstallFromBinary  ActionKind = "install_from_binary"
	ActionInstallFromCatalog ActionKind = "install_from_catalog"
)

// Action is the single install step offered to the device for a task.
type Action struct {
	Kind        ActionKind
	DownloadURL string
}

type Release struct {
	Version string `yaml:"version" json:"version"`
	URL     string `yaml:"url" json:"url"`
}

type App struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Author      string   `yaml:"author" json:"author,omitempty"`
	Description string   `yaml:"description" json:"description,omitempty"`
	Release     *Release `yaml:"release" json:"release,omitempty"`
}

// Callback is the decoded device callback.
type Callback struct {
	CorrelationID string
	Payload       map[string]any
}

// Container is a package converted into the device-native format.
type Container struct {
	Data      []byte
	MediaType string
	Extension string
}

// Document is an encoded protocol body together with its media type.
type Document struct {
	Body      []byte
	MediaType string
}

type StartResponse struct {
	ID string `json:"id"`
}

type UploadResponse struct {
	Key string `json:"key"`
}

type UploadURLResponse struct {
	URL string `json:"url"`
}

type StatusResponse struct {
	ID        string `json:"id"`
	Completed bool   `json:"completed"`
	Response  any    `json:"response"`
}

type SweepReport struct {
	Cutoff       time.Time `json:"cutoff"`
	DeletedTasks int       `json:"deleted_tasks"`
	DeletedBlobs int       `json:"deleted_blobs"`
}

type DownloadResult struct {
	FileName  string
	MediaType string
	Size      int64
	Content   io.Reader
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrBlobNotFound    = errors.New("blob not found")
	ErrAppNotFound     = errors.New("app not found")
	ErrDecode          = errors.New("malformed device request")
	ErrUnsupportedFile = errors.New("supported only .apk files")
	ErrInvalidPackage  = errors.New("package is not a valid apk")
)
