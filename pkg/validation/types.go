// Package validation implements the priority-ordered, short-circuiting
// middleware chain that inspects, mutates, or rejects messages flowing
// through an agent before and after model invocation.
package validation

import (
	"context"

	"github.com/agentgrid-dev/agentgrid/pkg/provider"
)

// Stage names a point in the agent lifecycle at which validators run.
type Stage string

const (
	StagePreExecution  Stage = "pre_execution"
	StagePostExecution Stage = "post_execution"

	// Additional stages are opaque to the pipeline; validators opt in.
	StagePreToolCall  Stage = "pre_tool_call"
	StagePostToolCall Stage = "post_tool_call"
)

// Content is the message variant under validation.
type Content interface {
	contentVariant()
}

// UserMessage is an inbound user message.
type UserMessage struct {
	Text string
}

// ModelResponse is a model response, optionally carrying tool calls.
type ModelResponse struct {
	Text      string
	ToolCalls []provider.ToolCall
}

// FinalResponse is the response about to be returned to the caller.
type FinalResponse struct {
	Text string
}

func (UserMessage) contentVariant()   {}
func (ModelResponse) contentVariant() {}
func (FinalResponse) contentVariant() {}

// Text returns the textual payload of any content variant.
func ContentText(c Content) string {
	switch v := c.(type) {
	case UserMessage:
		return v.Text
	case ModelResponse:
		return v.Text
	case FinalResponse:
		return v.Text
	default:
		return ""
	}
}

// withText returns a copy of c with its text replaced.
func withText(c Content, text string) Content {
	switch v := c.(type) {
	case UserMessage:
		v.Text = text
		return v
	case ModelResponse:
		v.Text = text
		return v
	case FinalResponse:
		v.Text = text
		return v
	default:
		return c
	}
}

// Request is the unit flowing through the pipeline. Identifiers are
// caller-supplied and propagate end to end.
type Request struct {
	AgentID   string
	RequestID string
	Stage     Stage
	Content   Content
	Context   map[string]any
}

// Clone deep-copies the request so validators cannot observe each
// other's scratch mutations. Content values are copied by value; tool
// call slices are duplicated.
func (r *Request) Clone() *Request {
	out := *r
	if r.Context != nil {
		out.Context = make(map[string]any, len(r.Context))
		for k, v := range r.Context {
			out.Context[k] = v
		}
	}
	if mr, ok := r.Content.(ModelResponse); ok && mr.ToolCalls != nil {
		mr.ToolCalls = append([]provider.ToolCall(nil), mr.ToolCalls...)
		out.Content = mr
	}
	return &out
}

// Modifications carries content changes requested by a validator.
type Modifications struct {
	// ModifiedContent replaces the content text when non-nil.
	ModifiedContent *string `json:"modified_content,omitempty"`

	// BlockedToolCalls lists tool-call indices to suppress.
	BlockedToolCalls []int `json:"blocked_tool_calls,omitempty"`

	// Warnings are annotations surfaced alongside the response.
	Warnings []string `json:"warnings,omitempty"`
}

// Response is a validator's (or the pipeline's) verdict.
type Response struct {
	Approved      bool           `json:"approved"`
	Reason        string         `json:"reason"`
	Modifications *Modifications `json:"modifications,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Approve builds an approving response.
func Approve(reason string) *Response {
	return &Response{Approved: true, Reason: reason}
}

// Reject builds a rejecting response.
func Reject(reason string) *Response {
	return &Response{Approved: false, Reason: reason}
}

// Config is the shared validator configuration bag.
type Config struct {
	// Enabled gates the validator without removing it from the pipeline.
	Enabled bool

	// Priority orders validators; lower runs first, ties broken by
	// insertion order.
	Priority int

	// Stages is the set of stages this validator applies to.
	Stages []Stage

	// Params carries validator-specific options.
	Params map[string]any
}

// AppliesTo reports whether the config's stage set includes stage.
func (c Config) AppliesTo(stage Stage) bool {
	for _, s := range c.Stages {
		if s == stage {
			return true
		}
	}
	return false
}

// Validator is an independently addressable validation unit. Validators
// are shared read-only across concurrent pipeline invocations.
type Validator interface {
	// Name returns the stable validator name.
	Name() string

	// Config returns the validator configuration.
	Config() Config

	// ShouldValidate reports whether this validator applies to the
	// request beyond the enabled/stage gating the pipeline performs.
	ShouldValidate(req *Request) bool

	// Validate maps a request to a verdict or a typed error.
	Validate(ctx context.Context, req *Request) (*Response, error)
}
