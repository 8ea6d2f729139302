// Package config loads the gateway's YAML settings file.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/n9te9/federation-gateway/internal/policy"
)

// HeaderRuleSetting is one raw header-propagation rule as written in
// gateway.yaml; CompileHeaderRules turns the list into policy rules.
type HeaderRuleSetting struct {
	// Kind is forward, rename, insert, or remove.
	Kind string `yaml:"kind"`
	// Name is a literal header name or a regular expression.
	Name string `yaml:"name"`
	// Rename is the target name for kind: rename.
	Rename string `yaml:"rename"`
	// Value is the inserted value for kind: insert.
	Value string `yaml:"value"`
	// Subgraphs restricts the rule; empty means all subgraphs.
	Subgraphs []string `yaml:"subgraphs"`
}

// TelemetrySetting is the opentelemetry settings block.
type TelemetrySetting struct {
	Tracing TracingSetting `yaml:"tracing"`
}

// TracingSetting enables OTLP trace export.
type TracingSetting struct {
	Enable   bool   `yaml:"enable" default:"false"`
	Endpoint string `yaml:"endpoint"`
}

// Settings is the gateway's configuration, loaded from gateway.yaml.
type Settings struct {
	Endpoint        string `yaml:"endpoint" default:"/graphql"`
	ServiceName     string `yaml:"service_name"`
	Port            int    `yaml:"port" default:"8080"`
	TimeoutDuration string `yaml:"timeout_duration" default:"5s"`

	// SupergraphFile is the post-composition supergraph SDL the planner
	// consumes. Composition itself happens upstream (registry or CI).
	SupergraphFile string `yaml:"supergraph_file"`

	// PlanningTimeout bounds one operation's planning phase.
	PlanningTimeout string `yaml:"planning_timeout" default:"2s"`

	HeaderRules   []HeaderRuleSetting `yaml:"header_rules"`
	Opentelemetry TelemetrySetting    `yaml:"opentelemetry"`
}

// Load reads and decodes a settings file.
func Load(path string) (*Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open gateway settings file: %w", err)
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway settings file: %w", err)
	}

	var settings Settings
	if err := yaml.Unmarshal(b, &settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gateway settings: %w", err)
	}
	settings.applyDefaults()
	return &settings, nil
}

func (s *Settings) applyDefaults() {
	if s.Endpoint == "" {
		s.Endpoint = "/graphql"
	}
	if s.Port == 0 {
		s.Port = 8080
	}
	if s.TimeoutDuration == "" {
		s.TimeoutDuration = "5s"
	}
	if s.PlanningTimeout == "" {
		s.PlanningTimeout = "2s"
	}
}

// Timeout parses TimeoutDuration.
func (s *Settings) Timeout() (time.Duration, error) {
	return time.ParseDuration(s.TimeoutDuration)
}

// PlanningDeadline parses PlanningTimeout.
func (s *Settings) PlanningDeadline() (time.Duration, error) {
	return time.ParseDuration(s.PlanningTimeout)
}

// CompileHeaderRules turns the raw settings into compiled policy rules,
// preserving declaration order.
func (s *Settings) CompileHeaderRules() ([]policy.HeaderRule, error) {
	rules := make([]policy.HeaderRule, 0, len(s.HeaderRules))
	for i, raw := range s.HeaderRules {
		var kind policy.HeaderRuleKind
		switch raw.Kind {
		case "forward":
			kind = policy.HeaderForward
		case "rename":
			kind = policy.HeaderRename
		case "insert":
			kind = policy.HeaderInsert
		case "remove":
			kind = policy.HeaderRemove
		default:
			return nil, fmt.Errorf("header rule %d: unknown kind %q", i, raw.Kind)
		}
		rule, err := policy.CompileHeaderRule(kind, raw.Name, raw.Rename, raw.Value, raw.Subgraphs)
		if err != nil {
			return nil, fmt.Errorf("header rule %d: %w", i, err)
		}
		if kind == policy.HeaderInsert {
			rule.Name = raw.Name
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
