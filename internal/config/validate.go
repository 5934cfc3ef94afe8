package config

import (
	"errors"
	"fmt"
	"net/url"
)

/*
Validate checks the fields the engine and its collaborators rely on:
- API base URL
- polling bounds and windows
- history driver/DSN
- worker queues
- devserver generator credentials
*/
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url %q is not an absolute URL", c.API.BaseURL)
	}
	if c.API.RequestsPerSecond < 0 {
		return errors.New("api.requests_per_second must not be negative")
	}

	if c.Polling.MaxProgress <= 0 {
		return errors.New("polling.max_progress must be a positive integer")
	}
	if c.Polling.TransientRetries <= 0 {
		return errors.New("polling.transient_retries must be a positive integer")
	}
	if c.Polling.TransientDelay < 0 {
		return errors.New("polling.transient_delay must not be negative")
	}
	for name, w := range map[string]Window{"fast": c.Polling.Windows.Fast, "long": c.Polling.Windows.Long} {
		if w.Min <= 0 || w.Max < w.Min {
			return fmt.Errorf("polling.windows.%s must satisfy 0 < min <= max (got %s..%s)", name, w.Min, w.Max)
		}
	}

	switch c.History.Driver {
	case "none":
	case "postgres", "sqlite":
		if c.History.DSN == "" {
			return fmt.Errorf("history.dsn is required when history.driver is %q", c.History.Driver)
		}
	default:
		return fmt.Errorf("history.driver %q is not one of postgres, sqlite, none", c.History.Driver)
	}

	if c.Worker.Concurrency <= 0 {
		return errors.New("worker.concurrency must be a positive integer")
	}
	for name, priority := range c.Worker.Queues {
		if name == "" {
			return errors.New("worker.queues contains an empty queue name")
		}
		if priority <= 0 {
			return fmt.Errorf("worker.queues priority for queue '%s' must be positive", name)
		}
	}

	switch c.DevServer.Generator {
	case "", "echo":
	case "openai":
		if c.DevServer.OpenaiApiKey == "" {
			return errors.New("devserver.openai_api_key is required when devserver.generator is openai")
		}
	case "gemini":
		if c.DevServer.GoogleApiKey == "" {
			return errors.New("devserver.google_api_key is required when devserver.generator is gemini")
		}
	default:
		return fmt.Errorf("devserver.generator %q is not one of echo, openai, gemini", c.DevServer.Generator)
	}
	if c.DevServer.Steps < 0 {
		return errors.New("devserver.steps must not be negative")
	}
	if c.DevServer.RequestsPerSecond < 0 {
		return errors.New("devserver.requests_per_second must not be negative")
	}
	return nil
}
