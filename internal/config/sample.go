package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/headlesssentinel/sentinel/internal/sentinelerr"
)

// WriteSample writes the built-in default configuration to path as
// YAML, with one example target, for the generate-config command.
func WriteSample(path string) error {
	cfg := Default()
	cfg.Targets = []Target{{IP: "10.0.0.5", Port: 5985, Transport: "ntlm", TimeoutSecs: 120}}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("%w: marshal sample config: %v", sentinelerr.ErrConfig, err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("%w: write sample config to %s: %v", sentinelerr.ErrConfig, path, err)
	}
	return nil
}
