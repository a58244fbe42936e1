package backend

import (
	"net/url"
	"time"

	"github.com/angeloszaimis/ai-router/config"
)

// Descriptor is the immutable per-backend configuration. It is created once
// per config generation and never mutated; updates arrive as a whole new
// generation.
type Descriptor struct {
	Name     string
	URL      *url.URL
	Priority int
	Timeout  time.Duration
	Enabled  bool
}

// DescriptorsFromConfig converts validated backend entries into descriptors,
// preserving the configuration order. Order matters: it is the tie breaker
// between backends of equal priority.
func DescriptorsFromConfig(backends []config.BackendConfig) ([]Descriptor, error) {
	descriptors := make([]Descriptor, 0, len(backends))

	for _, bc := range backends {
		u, err := url.Parse(bc.URL)
		if err != nil {
			return nil, err
		}

		timeout, err := time.ParseDuration(bc.Timeout)
		if err != nil {
			return nil, err
		}

		descriptors = append(descriptors, Descriptor{
			Name:     bc.Name,
			URL:      u,
			Priority: bc.Priority,
			Timeout:  timeout,
			Enabled:  bc.Enabled,
		})
	}

	return descriptors, nil
}
