// Package config loads command configuration from the process environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Prefix is prepended to every variable name declared in `env` struct tags.
const Prefix = "CREDRANK_"

// ParseEnv loads configuration from CREDRANK_-prefixed environment variables.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: Prefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
