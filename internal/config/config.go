// Package config loads the engine's typed configuration from YAML.
// Unknown top-level keys are warned about, not rejected, so a config
// file written for a newer build still starts an older one.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/headlesssentinel/sentinel/internal/model"
	"github.com/headlesssentinel/sentinel/internal/sentinelerr"
)

// Database holds the store's file path and retention policy.
type Database struct {
	Path           string `yaml:"path"`
	RetentionDays  int    `yaml:"retention_days"`
}

// Collection holds the host collector's per-cycle parameters.
type Collection struct {
	LogTypes        []string `yaml:"log_types"`
	HoursBack       int      `yaml:"hours_back"`
	MaxEvents       int      `yaml:"max_events"`
	ConcurrentHosts int      `yaml:"concurrent_hosts"`
}

// Target is one remote host entry under the top-level targets list.
type Target struct {
	IP          string `yaml:"ip"`
	Port        int    `yaml:"port"`
	Transport   string `yaml:"transport"`
	TimeoutSecs int    `yaml:"timeout"`

	// Credentials embedded directly in the config file; discouraged.
	// Only used if no secret store / env var entry exists for this
	// target.
	Credentials *InlineCredentials `yaml:"credentials,omitempty"`
}

// InlineCredentials is the last-resort credential source: a plaintext
// pair sitting in the config file.
type InlineCredentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ActionConfig is one action entry under a rule's actions list.
type ActionConfig struct {
	Type     string `yaml:"type"`
	URL      string `yaml:"url"`
	TypeHint string `yaml:"type_hint"`
	EmailTo  string `yaml:"email_to"`
	Script   string `yaml:"script"`
}

// ToAction converts one ActionConfig entry to the model's Action.
func (a ActionConfig) ToAction() model.Action {
	switch a.Type {
	case "email":
		return model.Action{Kind: model.ActionEmail, EmailTo: a.EmailTo}
	case "remediation":
		return model.Action{Kind: model.ActionRemediation, Script: a.Script}
	default:
		return model.Action{Kind: model.ActionWebhook, URL: a.URL, Flavor: a.TypeHint}
	}
}

// RuleConfig is one alert rule entry.
type RuleConfig struct {
	Name        string         `yaml:"name"`
	EventIDs    []uint32       `yaml:"event_ids"`
	Severity    string         `yaml:"severity"`
	HostPattern string         `yaml:"host_pattern"`
	Threshold   int            `yaml:"threshold"`
	Actions     []ActionConfig `yaml:"actions"`
}

// Alerts holds the watcher's schedule and rule set.
type Alerts struct {
	Enabled       bool         `yaml:"enabled"`
	CheckInterval int          `yaml:"check_interval"`
	Rules         []RuleConfig `yaml:"rules"`
}

// Reporting holds the (out-of-scope-to-render) report schedule.
type Reporting struct {
	Enabled   bool   `yaml:"enabled"`
	Schedule  string `yaml:"schedule"`
	Format    string `yaml:"format"`
	OutputDir string `yaml:"output_dir"`
}

// Config is the single typed configuration record loaded from
// config.yaml.
type Config struct {
	Database   Database   `yaml:"database"`
	Collection Collection `yaml:"collection"`
	Targets    []Target   `yaml:"targets"`
	Alerts     Alerts     `yaml:"alerts"`
	Reporting  Reporting  `yaml:"reporting"`
}

// Default returns the built-in configuration used when no config file
// is present.
func Default() Config {
	return Config{
		Database: Database{Path: "sentinel.db", RetentionDays: 90},
		Collection: Collection{
			LogTypes:        []string{"System", "Security", "Application"},
			HoursBack:       1,
			MaxEvents:       10000,
			ConcurrentHosts: 10,
		},
		Alerts: Alerts{
			Enabled:       true,
			CheckInterval: 60,
			Rules: []RuleConfig{
				{Name: "Failed Login Attempts", EventIDs: []uint32{4625}, Threshold: 5},
				{Name: "Critical Errors", Severity: "Critical", Threshold: 1},
			},
		},
		Reporting: Reporting{Enabled: true, Schedule: "0 8 * * *", Format: "markdown"},
	}
}

// Load reads and parses the YAML file at path. A missing file is not an
// error: it logs nothing itself (the caller decides whether to warn)
// and returns the built-in defaults.
func Load(path string) (Config, []string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil, nil
	}
	if err != nil {
		return Config{}, nil, fmt.Errorf("%w: read %s: %v", sentinelerr.ErrConfig, path, err)
	}

	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, nil, fmt.Errorf("%w: parse %s: %v", sentinelerr.ErrConfig, path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, nil, fmt.Errorf("%w: decode %s: %v", sentinelerr.ErrConfig, path, err)
	}

	warnings := unknownTopLevelKeys(raw)
	if err := validate(cfg); err != nil {
		return Config{}, warnings, err
	}
	return cfg, warnings, nil
}

var knownTopLevelKeys = map[string]bool{
	"database": true, "collection": true, "targets": true,
	"alerts": true, "reporting": true,
}

// unknownTopLevelKeys reports keys present in the file but not part of
// Config, so callers can log.Warn them instead of failing to start.
func unknownTopLevelKeys(raw map[string]yaml.Node) []string {
	var unknown []string
	for key := range raw {
		if !knownTopLevelKeys[key] {
			unknown = append(unknown, key)
		}
	}
	return unknown
}

// validate checks structural invariants config decoding alone can't
// enforce: IP/hostname well-formedness and transport enum membership.
func validate(cfg Config) error {
	for _, t := range cfg.Targets {
		if !ValidHostIdentifier(t.IP) {
			return fmt.Errorf("%w: target %q is not a valid IP or hostname", sentinelerr.ErrConfig, t.IP)
		}
		switch model.Transport(t.Transport) {
		case model.TransportNTLM, model.TransportKerberos, model.TransportBasic, model.TransportCredSSP, "":
		default:
			return fmt.Errorf("%w: target %q has unknown transport %q", sentinelerr.ErrConfig, t.IP, t.Transport)
		}
	}
	return nil
}

// ToHostTarget converts one Target config entry to the model's
// HostTarget, applying the port, timeout, and transport defaults.
func (t Target) ToHostTarget() model.HostTarget {
	transport := model.Transport(t.Transport)
	if transport == "" {
		transport = model.TransportNTLM
	}
	port := t.Port
	if port == 0 {
		port = 5985
	}
	timeout := time.Duration(t.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return model.HostTarget{
		IP:               t.IP,
		Port:             port,
		Transport:        transport,
		OperationTimeout: timeout,
		CredentialRef:    t.IP,
	}
}
