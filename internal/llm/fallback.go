package llm

import (
	"context"
	"errors"
	"fmt"

	"flowdesk/internal/log"
)

var errNoProviders = errors.New("no llm providers configured")

// FallbackProvider asks the primary provider first and moves down the list
// only when the failure could plausibly clear on another backend.
type FallbackProvider struct {
	providers []Provider
}

func NewFallbackProvider(providers ...Provider) *FallbackProvider {
	return &FallbackProvider{providers: providers}
}

func (f *FallbackProvider) Name() string {
	if len(f.providers) == 0 {
		return "fallback"
	}
	return f.providers[0].Name() + "+fallback"
}

func (f *FallbackProvider) DefaultModel() string {
	if len(f.providers) == 0 {
		return ""
	}
	return f.providers[0].DefaultModel()
}

// Chat returns the first successful response. The requested model belongs
// to the primary, so fallbacks receive a copy with Model cleared and use
// their own default. When every provider fails the errors are joined.
func (f *FallbackProvider) Chat(ctx context.Context, req *ChatRequest) (*LLMResponse, error) {
	if len(f.providers) == 0 {
		return nil, errNoProviders
	}
	var failures []error
	for i, p := range f.providers {
		r := req
		if i > 0 && req.Model != "" {
			stripped := *req
			stripped.Model = ""
			r = &stripped
		}
		resp, err := p.Chat(ctx, r)
		if err == nil {
			if i > 0 {
				log.Infof("[fallback] answered by %s after %d failure(s)", p.Name(), i)
			}
			return resp, nil
		}
		if ctx.Err() != nil || !shouldFallback(err) {
			return nil, err
		}
		failures = append(failures, fmt.Errorf("%s: %w", p.Name(), err))
		log.Warnf("[fallback] %s failed: %v", p.Name(), err)
	}
	return nil, errors.Join(failures...)
}

// shouldFallback is false for failures another backend would repeat, such
// as a rejected key or a malformed request.
func shouldFallback(err error) bool {
	var llmErr *LLMError
	if !errors.As(err, &llmErr) {
		return true
	}
	return llmErr.Type != ErrorAuth && llmErr.Type != ErrorInvalidInput
}
