package validation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agentgrid-dev/agentgrid/pkg/provider"
)

// DefaultHallucinationPrompt asks the detection model to check a model
// response against the tool-call evidence gathered during execution.
const DefaultHallucinationPrompt = `You are a fact checker. Given a model response and the tool calls it made, decide whether the response asserts facts that the tool evidence does not support.

Response and evidence:
{message}

Respond with exactly one word on the first line:
HALLUCINATION_DETECTED if the response contains unsupported claims,
UNSUPPORTED if the evidence is insufficient to verify the claims,
SUPPORTED otherwise.`

// HallucinationValidatorConfig tunes the model-assisted grounding check.
type HallucinationValidatorConfig struct {
	Model          string
	PromptTemplate string
	Timeout        time.Duration
	// MaxRetries bounds retries of retriable detection failures. Zero
	// takes the default of one retry; a negative value disables retries.
	MaxRetries int
	// RejectUnsupported also rejects responses whose claims cannot be
	// verified from the evidence, not just contradicted ones.
	RejectUnsupported bool
}

// HallucinationValidator asks a detection model whether a model response
// is grounded in the tool calls it made. Runs post-execution.
type HallucinationValidator struct {
	cfg  HallucinationValidatorConfig
	vcfg Config
	det  *detector
}

func NewHallucinationValidator(p provider.Provider, cfg HallucinationValidatorConfig) *HallucinationValidator {
	if cfg.PromptTemplate == "" {
		cfg.PromptTemplate = DefaultHallucinationPrompt
	}
	return &HallucinationValidator{
		cfg: cfg,
		vcfg: Config{
			Enabled:  true,
			Priority: 2,
			Stages:   []Stage{StagePostExecution},
		},
		det: &detector{
			provider: p,
			model:    cfg.Model,
			timeout:  cfg.Timeout,
			retries:  cfg.MaxRetries,
		},
	}
}

func (v *HallucinationValidator) Name() string { return "hallucination_detector" }

func (v *HallucinationValidator) Config() Config { return v.vcfg }

func (v *HallucinationValidator) SetConfig(cfg Config) { v.vcfg = cfg }

func (v *HallucinationValidator) ShouldValidate(req *Request) bool {
	resp, ok := req.Content.(ModelResponse)
	return ok && resp.Text != ""
}

func (v *HallucinationValidator) Validate(ctx context.Context, req *Request) (*Response, error) {
	modelResp, ok := req.Content.(ModelResponse)
	if !ok {
		return Approve("not a model response"), nil
	}

	verdict, err := v.det.classify(ctx, v.Name(), v.cfg.PromptTemplate, formatEvidence(modelResp))
	if err != nil {
		return nil, err
	}

	switch {
	case verdictMatches(verdict, "HALLUCINATION_DETECTED"):
		return Reject("response contains claims unsupported by tool evidence"), nil
	case verdictMatches(verdict, "UNSUPPORTED"):
		if v.cfg.RejectUnsupported {
			return Reject("response claims could not be verified against tool evidence"), nil
		}
		resp := Approve("claims unverified but allowed")
		resp.Modifications = &Modifications{
			Warnings: []string{"detection model could not verify response claims"},
		}
		return resp, nil
	case verdictMatches(verdict, "SUPPORTED"):
		return Approve("response grounded in tool evidence"), nil
	default:
		return nil, fmt.Errorf("hallucination detector returned unrecognized verdict %q", verdict)
	}
}

// formatEvidence renders the response text followed by the tool calls
// it made, for the detection prompt.
func formatEvidence(resp ModelResponse) string {
	var b strings.Builder
	b.WriteString("Response:\n")
	b.WriteString(resp.Text)
	if len(resp.ToolCalls) == 0 {
		b.WriteString("\n\nTool calls: none")
		return b.String()
	}
	b.WriteString("\n\nTool calls:")
	for _, tc := range resp.ToolCalls {
		fmt.Fprintf(&b, "\n- %s(%s)", tc.Name, tc.Arguments)
	}
	return b.String()
}
