package reconciler

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/devroom-io/devroom/internal/types"
)

// DecodeErrPlaceholder replaces the body of an assistant message whose
// payload could not be decoded.
const DecodeErrPlaceholder = "Error: Invalid AI response"

// AIPayload is the structured body of an assistant message.
type AIPayload struct {
	Text         string         `json:"text"`
	FileTree     types.FileTree `json:"fileTree,omitempty"`
	BuildCommand *Command       `json:"buildCommand,omitempty"`
	StartCommand *Command       `json:"startCommand,omitempty"`
}

type Command struct {
	MainItem string   `json:"mainItem"`
	Commands []string `json:"commands"`
}

// DecodeAIPayload parses an assistant message body. The collaborator
// sometimes returns the JSON document wrapped in one extra layer of string
// encoding, so a payload that decodes to a string is unwrapped once before
// the structural parse. A payload without a "text" field is rejected.
func DecodeAIPayload(raw string) (*AIPayload, error) {
	data := []byte(raw)

	var nested string
	if err := json.Unmarshal(data, &nested); err == nil {
		data = []byte(nested)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("parse ai payload: %w", err)
	}
	if _, ok := fields["text"]; !ok {
		return nil, errors.New("ai payload missing text field")
	}

	var p AIPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse ai payload: %w", err)
	}

	return &p, nil
}
