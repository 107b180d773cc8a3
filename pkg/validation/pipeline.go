package validation

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/agentgrid-dev/agentgrid/internal/observability"
)

// Pipeline runs a configured set of validators in priority order,
// short-circuiting on the first rejection. It exposes an imperative call
// form (Run) and a middleware-adapter form (Middleware).
type Pipeline struct {
	mu         sync.RWMutex
	validators []Validator
}

// NewPipeline creates a pipeline over the given validators. Insertion
// order breaks priority ties.
func NewPipeline(validators ...Validator) *Pipeline {
	return &Pipeline{validators: validators}
}

// Add appends a validator to the pipeline.
func (p *Pipeline) Add(v Validator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.validators = append(p.validators, v)
}

// Validators returns the validators in insertion order.
func (p *Pipeline) Validators() []Validator {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Validator(nil), p.validators...)
}

// ordered returns the validators sorted ascending by priority, ties
// broken by insertion order. Recomputed per call so runtime changes to
// priority or enablement take effect; trivial cost for typical N < 20.
func (p *Pipeline) ordered() []Validator {
	vs := p.Validators()
	sort.SliceStable(vs, func(i, j int) bool {
		return vs[i].Config().Priority < vs[j].Config().Priority
	})
	return vs
}

// Run validates req. The first validator to err propagates verbatim;
// the first to reject becomes the pipeline verdict. Modifications from
// approving validators fold into the live request before the next one
// runs: replacement content replaces, blocked tool-call indices union,
// warnings append, later metadata keys shadow earlier ones.
func (p *Pipeline) Run(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := observability.StartSpan(ctx, "validation.pipeline",
		attribute.String("stage", string(req.Stage)),
		attribute.String("request_id", req.RequestID),
	)
	defer span.End()

	live := req.Clone()

	var mods *Modifications
	var metadata map[string]any

	for _, v := range p.ordered() {
		cfg := v.Config()
		if !cfg.Enabled || !cfg.AppliesTo(live.Stage) || !v.ShouldValidate(live) {
			continue
		}

		start := time.Now()
		resp, err := v.Validate(ctx, live.Clone())
		elapsed := time.Since(start)

		if err != nil {
			observability.RecordValidation(v.Name(), "error", elapsed)
			observability.RecordPipelineRun(string(req.Stage), "error")
			return nil, err
		}
		if !resp.Approved {
			observability.RecordValidation(v.Name(), "rejected", elapsed)
			observability.RecordPipelineRun(string(req.Stage), "rejected")
			return resp, nil
		}
		observability.RecordValidation(v.Name(), "approved", elapsed)

		if resp.Modifications != nil {
			mods = foldModifications(mods, resp.Modifications)
			if resp.Modifications.ModifiedContent != nil {
				live.Content = withText(live.Content, *resp.Modifications.ModifiedContent)
			}
		}
		if len(resp.Metadata) > 0 {
			if metadata == nil {
				metadata = make(map[string]any, len(resp.Metadata))
			}
			for k, val := range resp.Metadata {
				metadata[k] = val
			}
		}
	}

	observability.RecordPipelineRun(string(req.Stage), "approved")
	return &Response{
		Approved:      true,
		Reason:        "all validators passed",
		Modifications: mods,
		Metadata:      metadata,
	}, nil
}

// foldModifications merges next into acc: replacement content replaces,
// blocked indices union, warnings append.
func foldModifications(acc, next *Modifications) *Modifications {
	if acc == nil {
		acc = &Modifications{}
	}
	if next.ModifiedContent != nil {
		acc.ModifiedContent = next.ModifiedContent
	}
	acc.BlockedToolCalls = unionInts(acc.BlockedToolCalls, next.BlockedToolCalls)
	acc.Warnings = append(acc.Warnings, next.Warnings...)
	return acc
}

func unionInts(a, b []int) []int {
	if len(b) == 0 {
		return a
	}
	seen := make(map[int]struct{}, len(a)+len(b))
	for _, v := range a {
		seen[v] = struct{}{}
	}
	out := a
	for _, v := range b {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}

// Handler is the inner request handler the middleware form adapts to.
type Handler func(ctx context.Context, req *Request) (*Response, error)

// Middleware wraps next with the pipeline: on full approval the inner
// handler runs against the (possibly modified) request; on rejection it
// is never called and the rejection is returned as the response.
func (p *Pipeline) Middleware(next Handler) Handler {
	return func(ctx context.Context, req *Request) (*Response, error) {
		verdict, err := p.Run(ctx, req)
		if err != nil {
			return nil, err
		}
		if !verdict.Approved {
			return verdict, nil
		}

		inner := req
		if verdict.Modifications != nil && verdict.Modifications.ModifiedContent != nil {
			inner = req.Clone()
			inner.Content = withText(inner.Content, *verdict.Modifications.ModifiedContent)
		}
		return next(ctx, inner)
	}
}
