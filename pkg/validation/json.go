package validation

import (
	"encoding/json"
	"fmt"

	"github.com/agentgrid-dev/agentgrid/pkg/core"
	"github.com/agentgrid-dev/agentgrid/pkg/provider"
)

// Wire tags for the content variants.
const (
	contentUserMessage   = "user_message"
	contentModelResponse = "model_response"
	contentFinalResponse = "final_response"
)

// contentEnvelope is the type-tagged wire form of the Content sum type.
type contentEnvelope struct {
	Type      string              `json:"type"`
	Text      string              `json:"text"`
	ToolCalls []provider.ToolCall `json:"tool_calls,omitempty"`
}

func envelopeFor(c Content) (*contentEnvelope, error) {
	switch v := c.(type) {
	case nil:
		return nil, nil
	case UserMessage:
		return &contentEnvelope{Type: contentUserMessage, Text: v.Text}, nil
	case ModelResponse:
		return &contentEnvelope{Type: contentModelResponse, Text: v.Text, ToolCalls: v.ToolCalls}, nil
	case FinalResponse:
		return &contentEnvelope{Type: contentFinalResponse, Text: v.Text}, nil
	default:
		return nil, core.NewError(core.KindValidation, core.CodeSerialization,
			fmt.Sprintf("unsupported content variant %T", c))
	}
}

func (e *contentEnvelope) content() (Content, error) {
	switch e.Type {
	case contentUserMessage:
		return UserMessage{Text: e.Text}, nil
	case contentModelResponse:
		return ModelResponse{Text: e.Text, ToolCalls: e.ToolCalls}, nil
	case contentFinalResponse:
		return FinalResponse{Text: e.Text}, nil
	default:
		return nil, core.NewError(core.KindValidation, core.CodeSerialization,
			fmt.Sprintf("unknown content type %q", e.Type))
	}
}

type requestJSON struct {
	AgentID   string           `json:"agent_id"`
	RequestID string           `json:"request_id"`
	Stage     Stage            `json:"stage"`
	Content   *contentEnvelope `json:"content,omitempty"`
	Context   map[string]any   `json:"context,omitempty"`
}

// MarshalJSON encodes the request with a type-tagged content envelope so
// the variant survives the round trip.
func (r Request) MarshalJSON() ([]byte, error) {
	env, err := envelopeFor(r.Content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(requestJSON{
		AgentID:   r.AgentID,
		RequestID: r.RequestID,
		Stage:     r.Stage,
		Content:   env,
		Context:   r.Context,
	})
}

// UnmarshalJSON decodes the envelope form. Decode failures and unknown
// content tags surface as serialization errors in the shared taxonomy.
func (r *Request) UnmarshalJSON(data []byte) error {
	var raw requestJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return core.WrapError(core.KindValidation, core.CodeSerialization,
			"decoding validation request", err)
	}
	r.AgentID = raw.AgentID
	r.RequestID = raw.RequestID
	r.Stage = raw.Stage
	r.Context = raw.Context
	r.Content = nil
	if raw.Content != nil {
		c, err := raw.Content.content()
		if err != nil {
			return err
		}
		r.Content = c
	}
	return nil
}
