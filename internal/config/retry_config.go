package config

import "github.com/fairyhunter13/ai-job-agent/internal/domain"

// GetRetryConfig builds the queue retry policy: backoff knobs come from
// the environment, error classification stays on the domain defaults.
func (c Config) GetRetryConfig() domain.RetryConfig {
	rc := domain.DefaultRetryConfig()
	rc.MaxRetries = c.RetryMaxRetries
	rc.InitialDelay = c.RetryInitialDelay
	rc.MaxDelay = c.RetryMaxDelay
	rc.Multiplier = c.RetryMultiplier
	rc.Jitter = c.RetryJitter
	return rc
}
