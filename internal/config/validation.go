package config

import (
	"fmt"

	"github.com/devildex/devildex/internal/docset"
)

// Validate checks cross-field invariants after defaults are applied.
func (c *Config) Validate() error {
	if c.Scheduler.Workers <= 0 {
		return fmt.Errorf("scheduler.workers must be positive")
	}
	if c.Scheduler.BuildTimeout <= 0 {
		return fmt.Errorf("scheduler.build_timeout must be positive")
	}
	if err := c.Retry.Policy().Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	for project, backend := range c.Backends.ProjectOverrides {
		if _, err := docset.ParseBackendKind(backend); err != nil {
			return fmt.Errorf("backends.project_overrides[%s]: %w", project, err)
		}
	}
	for backend := range c.Backends.Executables {
		if _, err := docset.ParseBackendKind(backend); err != nil {
			return fmt.Errorf("backends.executables[%s]: %w", backend, err)
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Notify.Enabled && c.Notify.URL == "" {
		return fmt.Errorf("notify.enabled requires notify.url")
	}
	return nil
}
