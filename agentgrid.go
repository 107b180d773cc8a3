// Package agentgrid wires the runtime together: model providers, the
// validation pipeline, local service discovery, and the resource
// registry, assembled from a single configuration.
package agentgrid

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentgrid-dev/agentgrid/internal/observability"
	"github.com/agentgrid-dev/agentgrid/pkg/config"
	"github.com/agentgrid-dev/agentgrid/pkg/core"
	"github.com/agentgrid-dev/agentgrid/pkg/discovery"
	"github.com/agentgrid-dev/agentgrid/pkg/provider"
	"github.com/agentgrid-dev/agentgrid/pkg/resource"
	"github.com/agentgrid-dev/agentgrid/pkg/validation"
)

// Core is the assembled runtime. Create one with New, use it from any
// goroutine, and Shutdown it once.
type Core struct {
	cfg       *config.Config
	registry  *resource.Registry
	pipeline  *validation.Pipeline
	discovery *discovery.Discovery

	mu        sync.RWMutex
	providers map[string]provider.Provider
}

// Option customizes a Core.
type Option func(*coreOptions)

type coreOptions struct {
	providers map[string]provider.Provider
	recorder  core.Recorder
}

// WithProvider registers a provider under a name, replacing the one the
// config would construct. Tests use this to install mocks.
func WithProvider(name string, p provider.Provider) Option {
	return func(o *coreOptions) { o.providers[name] = p }
}

// WithRecorder sets the diagnostic sink for resource lifecycle events.
func WithRecorder(rec core.Recorder) Option {
	return func(o *coreOptions) { o.recorder = rec }
}

// New assembles a Core from configuration.
func New(cfg *config.Config, opts ...Option) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := observability.InitFromEnv(); err != nil {
		log.Printf("Warning: failed to initialize observability: %v", err)
	}
	if cfg.Runtime.EnableMetrics {
		observability.InitMetrics()
	}

	o := &coreOptions{
		providers: make(map[string]provider.Provider),
		recorder:  core.NewLogRecorder(),
	}
	for _, opt := range opts {
		opt(o)
	}

	c := &Core{
		cfg:       cfg,
		registry:  resource.NewRegistry(resource.WithRegistryRecorder(o.recorder)),
		providers: o.providers,
		discovery: discovery.New(discovery.Config{
			Endpoints: map[discovery.ServiceType]string{
				discovery.ServiceOllama:   cfg.OllamaEndpoint,
				discovery.ServiceLMStudio: cfg.LMStudioEndpoint,
			},
			ProbeTimeout:     cfg.Discovery.ProbeTimeout,
			ServiceTTL:       cfg.Discovery.ServiceTTL,
			ModelTTL:         cfg.Discovery.ModelTTL,
			FailureThreshold: cfg.Discovery.FailureThreshold,
		}),
	}

	if err := c.initProviders(); err != nil {
		return nil, err
	}
	if err := c.initPipeline(); err != nil {
		return nil, err
	}
	return c, nil
}

// initProviders constructs the providers the config enables, skipping
// names already supplied through options.
func (c *Core) initProviders() error {
	if _, ok := c.providers["ollama"]; !ok {
		endpoint := c.cfg.OllamaEndpoint
		if endpoint == "" {
			endpoint = provider.DefaultOllamaEndpoint
		}
		p, err := provider.NewOllamaProvider(endpoint)
		if err != nil {
			return fmt.Errorf("creating ollama provider: %w", err)
		}
		c.providers["ollama"] = p
	}

	if _, ok := c.providers["lmstudio"]; !ok {
		endpoint := c.cfg.LMStudioEndpoint
		if endpoint == "" {
			endpoint = discovery.ServiceLMStudio.DefaultEndpoint()
		}
		c.providers["lmstudio"] = provider.NewOpenAICompatibleProvider(endpoint+"/v1", "")
	}

	if _, ok := c.providers["openai"]; !ok && c.cfg.OpenAIKey != "" {
		p, err := provider.NewOpenAIProvider(c.cfg.OpenAIKey)
		if err != nil {
			return fmt.Errorf("creating openai provider: %w", err)
		}
		c.providers["openai"] = p
	}
	return nil
}

// initPipeline builds the validation pipeline from config: the
// deterministic request validator always runs first, the model-assisted
// detectors follow when enabled.
func (c *Core) initPipeline() error {
	c.pipeline = validation.NewPipeline()
	if !c.cfg.Validation.Enabled {
		return nil
	}

	rv, err := validation.NewRequestValidator(validation.RequestValidatorConfig{
		MinMessageLength:     c.cfg.Validation.MinMessageLength,
		MaxMessageLength:     c.cfg.Validation.MaxMessageLength,
		ProhibitedPatterns:   c.cfg.Validation.ProhibitedPatterns,
		MaxRequestsPerMinute: c.cfg.Validation.MaxRequestsPerMinute,
		RequiredContextKeys:  c.cfg.Validation.RequiredContextKeys,
		StripHTML:            c.cfg.Validation.StripHTML,
		NormalizeUnicode:     c.cfg.Validation.NormalizeUnicode,
	})
	if err != nil {
		return fmt.Errorf("building request validator: %w", err)
	}
	c.pipeline.Add(rv)

	if !c.cfg.Validation.JailbreakDetection && !c.cfg.Validation.HallucinationCheck {
		return nil
	}

	model, err := core.ParseModelID(c.cfg.DetectionModel)
	if err != nil {
		return fmt.Errorf("parsing detection model: %w", err)
	}
	det, err := c.Provider(model.Provider)
	if err != nil {
		return fmt.Errorf("resolving detection provider: %w", err)
	}

	if c.cfg.Validation.JailbreakDetection {
		c.pipeline.Add(validation.NewJailbreakValidator(det, validation.JailbreakValidatorConfig{
			Model: model.Name,
		}))
	}
	if c.cfg.Validation.HallucinationCheck {
		c.pipeline.Add(validation.NewHallucinationValidator(det, validation.HallucinationValidatorConfig{
			Model: model.Name,
		}))
	}
	return nil
}

// Provider returns the named provider.
func (c *Core) Provider(name string) (provider.Provider, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.providers[name]
	if !ok {
		return nil, core.NewError(core.KindConfiguration, core.CodeMissingOption,
			fmt.Sprintf("no provider named %q", name))
	}
	return p, nil
}

// RegisterProvider installs a provider under a name at runtime.
func (c *Core) RegisterProvider(name string, p provider.Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[name] = p
}

// Pipeline returns the validation pipeline, for installing extra
// validators.
func (c *Core) Pipeline() *validation.Pipeline { return c.pipeline }

// Discovery returns the local-service discovery cache.
func (c *Core) Discovery() *discovery.Discovery { return c.discovery }

// Registry returns the resource registry.
func (c *Core) Registry() *resource.Registry { return c.registry }

// Execute runs one request through the full lifecycle: pre-execution
// validation, model completion, post-execution validation. A rejection
// at either stage surfaces as a pipeline_rejected error.
func (c *Core) Execute(ctx context.Context, agentID, message string) (string, error) {
	model, err := core.ParseModelID(c.cfg.DefaultModel)
	if err != nil {
		return "", fmt.Errorf("parsing default model: %w", err)
	}
	prov, err := c.Provider(model.Provider)
	if err != nil {
		return "", err
	}

	requestID := uuid.NewString()

	// Track the in-flight execution in the registry so shutdown can
	// account for it.
	execID := resource.NewID()
	if err := c.registry.Register(execID, resource.Info{
		Type:      "execution",
		CreatedAt: time.Now(),
		Metadata:  map[string]string{"agent_id": agentID, "request_id": requestID},
	}); err != nil {
		return "", err
	}
	defer c.registry.Unregister(execID)
	observability.SetActiveResources(c.registry.ActiveCount())

	pre := &validation.Request{
		AgentID:   agentID,
		RequestID: requestID,
		Stage:     validation.StagePreExecution,
		Content:   validation.UserMessage{Text: message},
	}
	verdict, err := c.pipeline.Run(ctx, pre)
	if err != nil {
		return "", err
	}
	if !verdict.Approved {
		return "", core.NewError(core.KindValidation, core.CodeRejected, verdict.Reason)
	}
	text := message
	if verdict.Modifications != nil && verdict.Modifications.ModifiedContent != nil {
		text = *verdict.Modifications.ModifiedContent
	}

	resp, err := prov.CreateCompletion(ctx, provider.CompletionRequest{
		Model:       model.Name,
		Messages:    []provider.Message{{Role: "user", Content: text}},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	post := &validation.Request{
		AgentID:   agentID,
		RequestID: requestID,
		Stage:     validation.StagePostExecution,
		Content:   validation.ModelResponse{Text: resp.Content, ToolCalls: resp.ToolCalls},
	}
	verdict, err = c.pipeline.Run(ctx, post)
	if err != nil {
		return "", err
	}
	if !verdict.Approved {
		return "", core.NewError(core.KindValidation, core.CodeRejected, verdict.Reason)
	}
	out := resp.Content
	if verdict.Modifications != nil && verdict.Modifications.ModifiedContent != nil {
		out = *verdict.Modifications.ModifiedContent
	}
	return out, nil
}

// ExecuteStream starts a streaming completion after pre-execution
// validation and returns the stream in a guard. If the caller abandons
// the guard the stream is closed during garbage collection instead of
// leaking its connection.
func (c *Core) ExecuteStream(ctx context.Context, agentID, message string) (*resource.Guard[provider.Stream], error) {
	model, err := core.ParseModelID(c.cfg.DefaultModel)
	if err != nil {
		return nil, fmt.Errorf("parsing default model: %w", err)
	}
	prov, err := c.Provider(model.Provider)
	if err != nil {
		return nil, err
	}

	pre := &validation.Request{
		AgentID:   agentID,
		RequestID: uuid.NewString(),
		Stage:     validation.StagePreExecution,
		Content:   validation.UserMessage{Text: message},
	}
	verdict, err := c.pipeline.Run(ctx, pre)
	if err != nil {
		return nil, err
	}
	if !verdict.Approved {
		return nil, core.NewError(core.KindValidation, core.CodeRejected, verdict.Reason)
	}
	text := message
	if verdict.Modifications != nil && verdict.Modifications.ModifiedContent != nil {
		text = *verdict.Modifications.ModifiedContent
	}

	stream, err := prov.CreateStreaming(ctx, provider.CompletionRequest{
		Model:       model.Name,
		Messages:    []provider.Message{{Role: "user", Content: text}},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	return resource.NewGuard(stream, func(ctx context.Context, s provider.Stream) error {
		return s.Close()
	}), nil
}

// Shutdown drains the registry and flushes observability exporters.
func (c *Core) Shutdown(ctx context.Context) error {
	if c.cfg.Runtime.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Runtime.ShutdownTimeout)
		defer cancel()
	}

	err := c.registry.Shutdown(ctx)
	if oerr := observability.Shutdown(ctx); oerr != nil {
		log.Printf("Warning: failed to shutdown observability: %v", oerr)
	}
	return err
}
