package validation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/agentgrid-dev/agentgrid/pkg/core"
	"github.com/agentgrid-dev/agentgrid/pkg/provider"
)

// detector makes a single-shot classification call to a provider model
// and returns the trimmed first line of the response. Shared by the
// model-assisted validators.
type detector struct {
	provider provider.Provider
	model    string
	timeout  time.Duration
	retries  int
}

const (
	defaultDetectionTimeout = 10 * time.Second
	defaultDetectionRetries = 1
)

// classify substitutes subject for the {message} placeholder in
// promptTemplate and asks the model for a verdict. Retriable provider
// failures are retried within the configured budget; exhaustion
// fails closed with a validation error carrying the provider cause.
func (d *detector) classify(ctx context.Context, validatorName, promptTemplate, subject string) (string, error) {
	prompt := strings.ReplaceAll(promptTemplate, "{message}", subject)

	timeout := d.timeout
	if timeout <= 0 {
		timeout = defaultDetectionTimeout
	}
	// Zero means unset and takes the default; a negative budget
	// disables retries entirely.
	retries := d.retries
	if retries == 0 {
		retries = defaultDetectionRetries
	} else if retries < 0 {
		retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := d.provider.CreateCompletion(callCtx, provider.CompletionRequest{
			Model: d.model,
			Messages: []provider.Message{
				{Role: "user", Content: prompt},
			},
			Temperature: 0,
		})
		cancel()

		if err == nil {
			verdict, _, _ := strings.Cut(strings.TrimSpace(resp.Content), "\n")
			return strings.TrimSpace(verdict), nil
		}
		lastErr = err
		if !retriable(err) {
			break
		}
	}
	return "", core.WrapError(core.KindValidation, core.CodeValidatorFailed,
		validatorName+" detection call failed", lastErr)
}

// retriable reports retriability across both error taxonomies.
func retriable(err error) bool {
	var pe *provider.ProviderError
	if errors.As(err, &pe) {
		return pe.Core().IsRetriable()
	}
	return core.IsRetriable(err)
}

// verdictMatches reports whether verdict starts with any of the given
// prefixes, case-insensitively.
func verdictMatches(verdict string, prefixes ...string) bool {
	upper := strings.ToUpper(verdict)
	for _, p := range prefixes {
		if strings.HasPrefix(upper, p) {
			return true
		}
	}
	return false
}
