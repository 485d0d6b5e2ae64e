package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/you-humble/camstage/internal/domain"
)

const (
	JSONMediaType   = "application/json"
	protocolVersion = "1.0"

	// installType is the action type the installer client understands for
	// both uploaded and catalog packages.
	installType = "App"
)

type response struct {
	Protocol string   `json:"protocol"`
	Status   string   `json:"status"`
	Actions  []action `json:"actions"`
}

type action struct {
	Type   string `json:"type"`
	Source string `json:"source"`
	URL    string `json:"url"`
}

// JSONCodec speaks the installer client's JSON portal dialect. The
// correlation id lives at session.correlationid and may arrive as a string
// or a number.
type JSONCodec struct{}

func NewJSONCodec() JSONCodec {
	return JSONCodec{}
}

func (JSONCodec) DecodeCallback(body []byte) (domain.Callback, error) {
	payload, err := decodeObject(body)
	if err != nil {
		return domain.Callback{}, err
	}

	return domain.Callback{
		CorrelationID: correlationID(payload),
		Payload:       payload,
	}, nil
}

func (JSONCodec) EncodeInstallResponse(kind domain.ActionKind, downloadURL string) ([]byte, error) {
	var source string
	switch kind {
	case domain.ActionInstallFromBinary:
		source = "upload"
	case domain.ActionInstallFromCatalog:
		source = "catalog"
	default:
		return nil, fmt.Errorf("encode install response: unsupported action %q", kind)
	}
	if downloadURL == "" {
		return nil, fmt.Errorf("encode install response: empty download url")
	}

	return json.Marshal(response{
		Protocol: protocolVersion,
		Status:   "ok",
		Actions:  []action{{Type: installType, Source: source, URL: downloadURL}},
	})
}

func (JSONCodec) EncodeAckResponse() ([]byte, error) {
	return json.Marshal(response{
		Protocol: protocolVersion,
		Status:   "ok",
		Actions:  []action{},
	})
}

func (JSONCodec) DecodeForDisplay(raw []byte) (any, error) {
	payload, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (JSONCodec) MediaType() string {
	return JSONMediaType
}

func decodeObject(body []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("empty body: %w", domain.ErrDecode)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	if payload == nil {
		return nil, fmt.Errorf("body is not an object: %w", domain.ErrDecode)
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after object: %w", domain.ErrDecode)
	}

	return payload, nil
}

func correlationID(payload map[string]any) string {
	session, ok := payload["session"].(map[string]any)
	if !ok {
		return ""
	}

	switch v := session["correlationid"].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
