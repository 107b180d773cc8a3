package validation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"
)

// RequestValidatorConfig tunes the deterministic request checks.
type RequestValidatorConfig struct {
	// MinMessageLength rejects content shorter than this many bytes.
	// Zero disables the check.
	MinMessageLength int
	// MaxMessageLength bounds the content in bytes. Zero disables the check.
	MaxMessageLength int
	// ProhibitedPatterns are regular expressions; a match rejects the
	// request with a reason naming the pattern.
	ProhibitedPatterns []string
	// MaxRequestsPerMinute bounds the per-agent request rate. Zero disables
	// rate checking.
	MaxRequestsPerMinute int
	// RequiredContextKeys must all be present in the request context.
	RequiredContextKeys []string
	// StripHTML removes HTML tags from user content as a modification.
	StripHTML bool
	// NormalizeUnicode folds combining diacritics out of user content.
	NormalizeUnicode bool
	// Verbose attaches check metadata to approvals.
	Verbose bool
}

// RequestValidator performs deterministic sanity checks on incoming user
// messages: size bounds, prohibited patterns, rate limits, required
// context, and optional content normalization. It runs before any
// model-assisted validator.
type RequestValidator struct {
	cfg      RequestValidatorConfig
	vcfg     Config
	patterns []*regexp.Regexp

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	htmlTags *regexp.Regexp
}

// NewRequestValidator compiles the configured patterns. Invalid patterns
// are a configuration error.
func NewRequestValidator(cfg RequestValidatorConfig) (*RequestValidator, error) {
	patterns := make([]*regexp.Regexp, 0, len(cfg.ProhibitedPatterns))
	for _, p := range cfg.ProhibitedPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling prohibited pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}
	return &RequestValidator{
		cfg:      cfg,
		patterns: patterns,
		vcfg: Config{
			Enabled:  true,
			Priority: 0,
			Stages:   []Stage{StagePreExecution},
		},
		limiters: make(map[string]*rate.Limiter),
		htmlTags: regexp.MustCompile(`<[^>]*>`),
	}, nil
}

func (v *RequestValidator) Name() string { return "request_validator" }

func (v *RequestValidator) Config() Config { return v.vcfg }

// SetConfig replaces the pipeline-facing config (priority, stages,
// enablement).
func (v *RequestValidator) SetConfig(cfg Config) { v.vcfg = cfg }

// ShouldValidate reports whether the request carries user content.
func (v *RequestValidator) ShouldValidate(req *Request) bool {
	_, ok := req.Content.(UserMessage)
	return ok
}

func (v *RequestValidator) Validate(ctx context.Context, req *Request) (*Response, error) {
	msg, ok := req.Content.(UserMessage)
	if !ok {
		return Approve("not a user message"), nil
	}
	text := msg.Text
	checks := 0

	if v.cfg.MinMessageLength > 0 {
		checks++
		if len(text) < v.cfg.MinMessageLength {
			return Reject(fmt.Sprintf("message too short: %d bytes below minimum of %d", len(text), v.cfg.MinMessageLength)), nil
		}
	}

	if v.cfg.MaxMessageLength > 0 {
		checks++
		if len(text) > v.cfg.MaxMessageLength {
			return Reject(fmt.Sprintf("message too long: %d bytes exceeds limit of %d", len(text), v.cfg.MaxMessageLength)), nil
		}
	}

	for _, re := range v.patterns {
		checks++
		if re.MatchString(text) {
			return Reject(fmt.Sprintf("message matches prohibited pattern %q", re.String())), nil
		}
	}

	if v.cfg.MaxRequestsPerMinute > 0 {
		checks++
		if recent, ok := req.Context["recent_requests"].([]any); ok {
			if len(recent) >= v.cfg.MaxRequestsPerMinute {
				return Reject(fmt.Sprintf("rate limit exceeded: %d requests in the last minute (limit %d)", len(recent), v.cfg.MaxRequestsPerMinute)), nil
			}
		} else if !v.allow(req.AgentID) {
			return Reject(fmt.Sprintf("rate limit exceeded for agent %s (limit %d/min)", req.AgentID, v.cfg.MaxRequestsPerMinute)), nil
		}
	}

	for _, key := range v.cfg.RequiredContextKeys {
		checks++
		if _, ok := req.Context[key]; !ok {
			return Reject(fmt.Sprintf("missing required context key %q", key)), nil
		}
	}

	modified := text
	if v.cfg.StripHTML {
		modified = v.htmlTags.ReplaceAllString(modified, "")
	}
	if v.cfg.NormalizeUnicode {
		modified = foldDiacritics(modified)
	}

	resp := Approve("request checks passed")
	if modified != text {
		resp.Modifications = &Modifications{ModifiedContent: &modified}
	}
	if v.cfg.Verbose {
		resp.Metadata = map[string]any{
			"message_length":           len(text),
			"validation_checks_passed": checks,
		}
	}
	return resp, nil
}

// allow consults the per-agent token bucket, creating it on first use.
func (v *RequestValidator) allow(agentID string) bool {
	v.mu.Lock()
	lim, ok := v.limiters[agentID]
	if !ok {
		perSecond := rate.Limit(float64(v.cfg.MaxRequestsPerMinute) / 60.0)
		lim = rate.NewLimiter(perSecond, v.cfg.MaxRequestsPerMinute)
		v.limiters[agentID] = lim
	}
	v.mu.Unlock()
	return lim.Allow()
}

// foldDiacritics decomposes the string and drops combining marks, so
// "café" normalizes to "cafe".
func foldDiacritics(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return norm.NFC.String(b.String())
}
