package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/you-humble/camstage/internal/domain"
)

func TestDecodeCallback(t *testing.T) {
	codec := NewJSONCodec()

	tests := []struct {
		name    string
		body    string
		wantID  string
		wantErr error
	}{
		{name: "string correlation", body: `{"session":{"correlationid":"abc"}}`, wantID: "abc"},
		{name: "numeric correlation", body: `{"session":{"correlationid":12345678901234}}`, wantID: "12345678901234"},
		{name: "missing session", body: `{"deviceinfo":{"model":"X"}}`, wantID: ""},
		{name: "session not an object", body: `{"session":"abc"}`, wantID: ""},
		{name: "correlation of wrong type", body: `{"session":{"correlationid":true}}`, wantID: ""},
		{name: "empty body", body: "  ", wantErr: domain.ErrDecode},
		{name: "not json", body: "correlationid=abc", wantErr: domain.ErrDecode},
		{name: "array", body: `[1,2]`, wantErr: domain.ErrDecode},
		{name: "null", body: `null`, wantErr: domain.ErrDecode},
		{name: "trailing data", body: `{"a":1}{"b":2}`, wantErr: domain.ErrDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, err := codec.DecodeCallback([]byte(tt.body))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DecodeCallback() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeCallback() error = %v", err)
			}
			if cb.CorrelationID != tt.wantID {
				t.Errorf("CorrelationID = %q, want %q", cb.CorrelationID, tt.wantID)
			}
			if cb.Payload == nil {
				t.Error("Payload is nil")
			}
		})
	}
}

func TestEncodeInstallResponse(t *testing.T) {
	codec := NewJSONCodec()

	tests := []struct {
		kind       domain.ActionKind
		wantSource string
	}{
		{kind: domain.ActionInstallFromBinary, wantSource: "upload"},
		{kind: domain.ActionInstallFromCatalog, wantSource: "catalog"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			body, err := codec.EncodeInstallResponse(tt.kind, "http://h/download/spk/blob/b1?task=T")
			if err != nil {
				t.Fatalf("EncodeInstallResponse() error = %v", err)
			}

			var got response
			if err := json.Unmarshal(body, &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if len(got.Actions) != 1 {
				t.Fatalf("actions = %d, want 1", len(got.Actions))
			}
			a := got.Actions[0]
			if a.Type != "App" || a.Source != tt.wantSource || a.URL != "http://h/download/spk/blob/b1?task=T" {
				t.Errorf("action = %+v", a)
			}
		})
	}

	if _, err := codec.EncodeInstallResponse(domain.ActionAcknowledge, "http://h"); err == nil {
		t.Error("EncodeInstallResponse(acknowledge) should fail")
	}
	if _, err := codec.EncodeInstallResponse(domain.ActionInstallFromBinary, ""); err == nil {
		t.Error("EncodeInstallResponse() with empty url should fail")
	}
}

func TestEncodeAckResponse(t *testing.T) {
	body, err := NewJSONCodec().EncodeAckResponse()
	if err != nil {
		t.Fatalf("EncodeAckResponse() error = %v", err)
	}

	var got response
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.Status != "ok" || got.Actions == nil || len(got.Actions) != 0 {
		t.Errorf("ack = %+v", got)
	}
}

func TestDecodeForDisplay(t *testing.T) {
	got, err := NewJSONCodec().DecodeForDisplay([]byte(`{"session":{"correlationid":"T"},"apps":[{"name":"a"}]}`))
	if err != nil {
		t.Fatalf("DecodeForDisplay() error = %v", err)
	}

	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("DecodeForDisplay() = %T, want map", got)
	}
	if _, ok := m["apps"].([]any); !ok {
		t.Errorf("apps = %#v", m["apps"])
	}
}
