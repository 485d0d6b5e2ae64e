// Package handshake implements the two device-facing steps of an install:
// issuing the descriptor that points the installer client at a task, and
// accepting the client's callback.
package handshake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/you-humble/camstage/internal/domain"
	"github.com/you-humble/camstage/internal/metrics"

	"github.com/google/uuid"
)

type TaskStore interface {
	Task(ctx context.Context, id string) (domain.Task, error)
	MarkCompleted(ctx context.Context, id string, raw []byte, at time.Time) (domain.Task, bool, error)
}

type Resolver interface {
	Resolve(ctx context.Context, task domain.Task) (domain.Action, error)
}

type Codec interface {
	DecodeCallback(body []byte) (domain.Callback, error)
	EncodeInstallResponse(kind domain.ActionKind, downloadURL string) ([]byte, error)
	EncodeAckResponse() ([]byte, error)
	MediaType() string
}

type DescriptorBuilder interface {
	Build(correlationID, callbackURL string) (domain.Document, error)
}

type Links interface {
	Callback() string
}

type handshake struct {
	taskStore  TaskStore
	resolver   Resolver
	codec      Codec
	descriptor DescriptorBuilder
	links      Links
	now        func() time.Time
}

func New(
	taskStore TaskStore,
	resolver Resolver,
	codec Codec,
	descriptor DescriptorBuilder,
	links Links,
) *handshake {
	return &handshake{
		taskStore:  taskStore,
		resolver:   resolver,
		codec:      codec,
		descriptor: descriptor,
		links:      links,
		now:        time.Now,
	}
}

// Descriptor is read-only; a device may fetch it any number of times.
func (h *handshake) Descriptor(ctx context.Context, taskID string) (domain.Document, error) {
	if _, err := uuid.Parse(taskID); err != nil {
		return domain.Document{}, fmt.Errorf("descriptor %q: %w", taskID, domain.ErrTaskNotFound)
	}

	task, err := h.taskStore.Task(ctx, taskID)
	if err != nil {
		return domain.Document{}, err
	}

	doc, err := h.descriptor.Build(task.ID, h.links.Callback())
	if err != nil {
		return domain.Document{}, fmt.Errorf("build descriptor: %w", err)
	}

	return doc, nil
}

// Callback completes the task named by the body's correlation id and returns
// the encoded reply for the device. Only the call that performs the
// Created -> Completed transition resolves an install action; duplicates are
// acknowledged and leave the stored response untouched.
func (h *handshake) Callback(ctx context.Context, body []byte) (domain.Document, error) {
	cb, err := h.codec.DecodeCallback(body)
	if err != nil {
		metrics.RecordCallback("decode_error")
		return domain.Document{}, err
	}

	if _, err := uuid.Parse(cb.CorrelationID); err != nil {
		metrics.RecordCallback("not_found")
		return domain.Document{}, fmt.Errorf("correlation id %q: %w", cb.CorrelationID, domain.ErrTaskNotFound)
	}

	task, transitioned, err := h.taskStore.MarkCompleted(ctx, cb.CorrelationID, body, h.now())
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			metrics.RecordCallback("not_found")
		} else {
			metrics.RecordCallback("error")
		}
		return domain.Document{}, err
	}

	l := slog.With(slog.String("task_id", task.ID))

	if !transitioned {
		metrics.RecordCallback("duplicate")
		l.Info("handshake: duplicate callback acknowledged")
		return h.ack()
	}

	action, err := h.resolver.Resolve(ctx, task)
	if err != nil {
		metrics.RecordCallback("error")
		l.Error("handshake: resolve action", slog.String("error", err.Error()))
		return domain.Document{}, fmt.Errorf("resolve action: %w", err)
	}

	metrics.RecordCallback("completed")
	l.Info("handshake: task completed", slog.String("action", string(action.Kind)))

	if action.Kind == domain.ActionAcknowledge {
		return h.ack()
	}

	reply, err := h.codec.EncodeInstallResponse(action.Kind, action.DownloadURL)
	if err != nil {
		return domain.Document{}, fmt.Errorf("encode install response: %w", err)
	}

	return domain.Document{Body: reply, MediaType: h.codec.MediaType()}, nil
}

func (h *handshake) ack() (domain.Document, error) {
	reply, err := h.codec.EncodeAckResponse()
	if err != nil {
		return domain.Document{}, fmt.Errorf("encode ack response: %w", err)
	}
	return domain.Document{Body: reply, MediaType: h.codec.MediaType()}, nil
}
