package handshake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/you-humble/camstage/internal/domain"
	"github.com/you-humble/camstage/internal/infra/protocol"
	taskstore "github.com/you-humble/camstage/internal/infra/store/task"
	"github.com/you-humble/camstage/internal/links"
	"github.com/you-humble/camstage/internal/resolver"
)

type noCatalog struct{}

func (noCatalog) App(ctx context.Context, appID string) (domain.App, error) {
	return domain.App{}, domain.ErrAppNotFound
}

type countingResolver struct {
	next  Resolver
	calls atomic.Int32
}

func (r *countingResolver) Resolve(ctx context.Context, task domain.Task) (domain.Action, error) {
	r.calls.Add(1)
	return r.next.Resolve(ctx, task)
}

type fixture struct {
	h     *handshake
	store interface {
		CreateTask(ctx context.Context, p domain.CreateTaskParams) (string, error)
		Task(ctx context.Context, id string) (domain.Task, error)
	}
	resolver *countingResolver
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	l, err := links.New("http://stager.test")
	if err != nil {
		t.Fatalf("links.New() error = %v", err)
	}

	store := taskstore.NewMemoryTaskStore()
	res := &countingResolver{next: resolver.New(noCatalog{}, l)}
	h := New(store, res, protocol.NewJSONCodec(), protocol.NewXPDBuilder(""), l)

	return fixture{h: h, store: store, resolver: res}
}

func callbackBody(id string) []byte {
	return fmt.Appendf(nil, `{"session":{"correlationid":%q},"device":{"model":"X1"}}`, id)
}

func TestDescriptor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.store.CreateTask(ctx, domain.CreateTaskParams{})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	first, err := f.h.Descriptor(ctx, id)
	if err != nil {
		t.Fatalf("Descriptor() error = %v", err)
	}
	if first.MediaType != protocol.XPDMediaType {
		t.Errorf("MediaType = %q, want %q", first.MediaType, protocol.XPDMediaType)
	}

	body := string(first.Body)
	for _, want := range []string{id, "https://stager.test/camera/portal"} {
		if !strings.Contains(body, want) {
			t.Errorf("descriptor %q does not contain %q", body, want)
		}
	}

	second, err := f.h.Descriptor(ctx, id)
	if err != nil {
		t.Fatalf("second Descriptor() error = %v", err)
	}
	if string(second.Body) != body {
		t.Errorf("descriptor is not repeatable:\n%s\n%s", body, second.Body)
	}

	task, err := f.store.Task(ctx, id)
	if err != nil {
		t.Fatalf("Task() error = %v", err)
	}
	if _, done := task.Completed(); done {
		t.Errorf("Descriptor() completed the task")
	}
}

func TestDescriptorUnknownTask(t *testing.T) {
	f := newFixture(t)

	for _, id := range []string{"", "nope", "7f3b1a9e-0000-4000-8000-000000000000"} {
		t.Run(id, func(t *testing.T) {
			_, err := f.h.Descriptor(context.Background(), id)
			if !errors.Is(err, domain.ErrTaskNotFound) {
				t.Errorf("Descriptor(%q) error = %v, want ErrTaskNotFound", id, err)
			}
		})
	}
}

func TestCallback(t *testing.T) {
	tests := []struct {
		name       string
		intent     domain.Intent
		wantSource string
	}{
		{name: "no intent", intent: nil},
		{name: "blob intent", intent: domain.BlobIntent{Key: "k1"}, wantSource: "upload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			id, err := f.store.CreateTask(ctx, domain.CreateTaskParams{Intent: tt.intent})
			if err != nil {
				t.Fatalf("CreateTask() error = %v", err)
			}

			body := callbackBody(id)
			doc, err := f.h.Callback(ctx, body)
			if err != nil {
				t.Fatalf("Callback() error = %v", err)
			}
			if doc.MediaType != protocol.JSONMediaType {
				t.Errorf("MediaType = %q, want %q", doc.MediaType, protocol.JSONMediaType)
			}

			var reply struct {
				Actions []struct {
					Source string `json:"source"`
					URL    string `json:"url"`
				} `json:"actions"`
			}
			if err := json.Unmarshal(doc.Body, &reply); err != nil {
				t.Fatalf("reply is not JSON: %v", err)
			}

			if tt.wantSource == "" {
				if len(reply.Actions) != 0 {
					t.Errorf("actions = %+v, want none", reply.Actions)
				}
			} else {
				if len(reply.Actions) != 1 {
					t.Fatalf("actions = %+v, want one", reply.Actions)
				}
				if reply.Actions[0].Source != tt.wantSource {
					t.Errorf("source = %q, want %q", reply.Actions[0].Source, tt.wantSource)
				}
				if !strings.Contains(reply.Actions[0].URL, id) {
					t.Errorf("url %q does not reference task %s", reply.Actions[0].URL, id)
				}
			}

			task, err := f.store.Task(ctx, id)
			if err != nil {
				t.Fatalf("Task() error = %v", err)
			}
			c, done := task.Completed()
			if !done {
				t.Fatalf("task not completed")
			}
			if string(c.RawResponse) != string(body) {
				t.Errorf("RawResponse = %s, want %s", c.RawResponse, body)
			}
		})
	}
}

func TestCallbackDuplicateKeepsFirstResponse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.store.CreateTask(ctx, domain.CreateTaskParams{Intent: domain.BlobIntent{Key: "k1"}})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	first := callbackBody(id)
	if _, err := f.h.Callback(ctx, first); err != nil {
		t.Fatalf("first Callback() error = %v", err)
	}

	second := fmt.Appendf(nil, `{"session":{"correlationid":%q},"retry":true}`, id)
	doc, err := f.h.Callback(ctx, second)
	if err != nil {
		t.Fatalf("second Callback() error = %v", err)
	}
	if strings.Contains(string(doc.Body), "/download/") {
		t.Errorf("duplicate callback got install action: %s", doc.Body)
	}

	task, _ := f.store.Task(ctx, id)
	c, _ := task.Completed()
	if string(c.RawResponse) != string(first) {
		t.Errorf("RawResponse = %s, want first body %s", c.RawResponse, first)
	}
	if got := f.resolver.calls.Load(); got != 1 {
		t.Errorf("resolver calls = %d, want 1", got)
	}
}

func TestCallbackConcurrentResolvesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.store.CreateTask(ctx, domain.CreateTaskParams{Intent: domain.BlobIntent{Key: "k1"}})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	const callers = 16
	var (
		wg       sync.WaitGroup
		installs atomic.Int32
	)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc, err := f.h.Callback(ctx, fmt.Appendf(nil, `{"session":{"correlationid":%q},"n":%d}`, id, i))
			if err != nil {
				t.Errorf("Callback() error = %v", err)
				return
			}
			if strings.Contains(string(doc.Body), "/download/") {
				installs.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := f.resolver.calls.Load(); got != 1 {
		t.Errorf("resolver calls = %d, want 1", got)
	}
	if got := installs.Load(); got != 1 {
		t.Errorf("install replies = %d, want 1", got)
	}
}

func TestCallbackErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		body    []byte
		wantErr error
	}{
		{name: "empty body", body: nil, wantErr: domain.ErrDecode},
		{name: "not json", body: []byte("correlation=abc"), wantErr: domain.ErrDecode},
		{name: "array", body: []byte(`[1,2]`), wantErr: domain.ErrDecode},
		{name: "missing correlation", body: []byte(`{"session":{}}`), wantErr: domain.ErrTaskNotFound},
		{name: "non uuid correlation", body: callbackBody("abc"), wantErr: domain.ErrTaskNotFound},
		{name: "numeric correlation", body: []byte(`{"session":{"correlationid":42}}`), wantErr: domain.ErrTaskNotFound},
		{name: "unknown task", body: callbackBody("7f3b1a9e-0000-4000-8000-000000000000"), wantErr: domain.ErrTaskNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.h.Callback(context.Background(), tt.body)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Callback() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if got := f.resolver.calls.Load(); got != 0 {
		t.Errorf("resolver calls = %d, want 0", got)
	}
}

func TestCallbackDecodeErrorLeavesTaskUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.store.CreateTask(ctx, domain.CreateTaskParams{})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	broken := fmt.Appendf(nil, `{"session":{"correlationid":%q}`, id)
	if _, err := f.h.Callback(ctx, broken); !errors.Is(err, domain.ErrDecode) {
		t.Fatalf("Callback() error = %v, want ErrDecode", err)
	}

	task, _ := f.store.Task(ctx, id)
	if _, done := task.Completed(); done {
		t.Errorf("malformed callback completed the task")
	}
}
