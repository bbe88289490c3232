// Package config provides loading for the LLM model pool file.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// ModelPool is the ordered model list plus the fixed fallback chain.
// The chain is tried in declared order after a primary failure.
type ModelPool struct {
	Models        []domain.ModelSpec `yaml:"models"`
	FallbackChain []string           `yaml:"fallback_chain"`
}

// LoadModelPool reads the pool from path, or returns the compiled-in
// default pool when path is empty.
func LoadModelPool(path string) (ModelPool, error) {
	if path == "" {
		return DefaultModelPool(), nil
	}
	raw, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return ModelPool{}, fmt.Errorf("op=config.LoadModelPool: %w", err)
	}
	var pool ModelPool
	if err := yaml.Unmarshal(raw, &pool); err != nil {
		return ModelPool{}, fmt.Errorf("op=config.LoadModelPool: parse %s: %w", path, err)
	}
	if err := pool.Validate(); err != nil {
		return ModelPool{}, err
	}
	return pool, nil
}

// DefaultModelPool is the pool shipped with the binary: free-tier
// models first, a paid catch-all last.
func DefaultModelPool() ModelPool {
	return ModelPool{
		Models: []domain.ModelSpec{
			{Provider: "openrouter", Model: "deepseek/deepseek-chat-v3-0324:free", RPD: 50},
			{Provider: "openrouter", Model: "qwen/qwen-2.5-72b-instruct:free", RPD: 50},
			{Provider: "groq", Model: "llama-3.3-70b-versatile", RPD: 1000, RPM: 30, TPM: 12000},
			{Provider: "groq", Model: "llama-3.1-8b-instant", RPD: 14400, RPM: 30, TPM: 6000},
			{Provider: "openai", Model: "gpt-4o-mini"},
		},
		FallbackChain: []string{
			"deepseek/deepseek-chat-v3-0324:free",
			"llama-3.3-70b-versatile",
			"qwen/qwen-2.5-72b-instruct:free",
			"llama-3.1-8b-instant",
			"gpt-4o-mini",
		},
	}
}

// Validate checks the chain references declared models and models are unique.
func (p ModelPool) Validate() error {
	if len(p.Models) == 0 {
		return fmt.Errorf("op=config.ModelPool.Validate: empty model list")
	}
	seen := make(map[string]bool, len(p.Models))
	for _, m := range p.Models {
		if m.Provider == "" || m.Model == "" {
			return fmt.Errorf("op=config.ModelPool.Validate: model entry missing provider or model")
		}
		if seen[m.Model] {
			return fmt.Errorf("op=config.ModelPool.Validate: duplicate model %s", m.Model)
		}
		seen[m.Model] = true
	}
	for _, name := range p.FallbackChain {
		if !seen[name] {
			return fmt.Errorf("op=config.ModelPool.Validate: chain references unknown model %s", name)
		}
	}
	return nil
}

// Spec returns the pool entry for a model id.
func (p ModelPool) Spec(model string) (domain.ModelSpec, bool) {
	for _, m := range p.Models {
		if m.Model == model {
			return m, true
		}
	}
	return domain.ModelSpec{}, false
}

// ChainHead returns the first chain model; "auto" resolves to this.
func (p ModelPool) ChainHead() string {
	if len(p.FallbackChain) > 0 {
		return p.FallbackChain[0]
	}
	if len(p.Models) > 0 {
		return p.Models[0].Model
	}
	return ""
}

// ResolveModel maps a user preference onto a concrete pool model.
// "auto" (or empty) is an alias for the chain head; unknown names are
// rejected so a typo never silently falls back.
func (p ModelPool) ResolveModel(preferred string) (string, error) {
	preferred = strings.TrimSpace(preferred)
	if preferred == "" || strings.EqualFold(preferred, "auto") {
		return p.ChainHead(), nil
	}
	if _, ok := p.Spec(preferred); !ok {
		return "", fmt.Errorf("op=config.ResolveModel: unknown model %q: %w", preferred, domain.ErrInvalidArgument)
	}
	return preferred, nil
}
