// Package config loads a Program's default safety knobs and the
// ambient defaults of the agent/ssehttp layers from a YAML file, so an
// operator can tune max_steps, cycle detection, agent budgets, and SSE
// keepalive without a code change.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kestrelai/agentgraph/graph"
)

// Defaults is the YAML-loadable shape of a deployment's program
// defaults. Every field is optional; FromYAML/FromFile leave unset
// fields at their zero value, and GraphConfig folds them over
// graph.DefaultConfig() the same way graph.ExecutionOptions folds over
// a Program's own defaults, so "absent in the file" and "program
// default" mean the same thing.
type Defaults struct {
	MaxSteps       int        `yaml:"max_steps"`
	CycleDetection *bool      `yaml:"cycle_detection"`
	CycleWindow    int        `yaml:"cycle_window"`
	RunWallClock   Duration   `yaml:"run_wall_clock_budget"`
	Agent          Agent      `yaml:"agent"`
	SSE            SSE        `yaml:"sse"`
}

// Agent holds the YAML-loadable defaults for agent.Runtime nodes.
type Agent struct {
	Budget   int `yaml:"budget"`
	MaxSteps int `yaml:"max_steps"`
}

// SSE holds the YAML-loadable defaults for ssehttp.Handler.
type SSE struct {
	KeepAlive Duration `yaml:"keep_alive"`
}

// Duration unmarshals a YAML scalar the way time.ParseDuration does
// ("30s", "5m"), rather than requiring a bare number of nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// FromFile reads and parses a YAML defaults file.
func FromFile(path string) (Defaults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Defaults{}, fmt.Errorf("config: read file: %w", err)
	}
	return FromYAML(data)
}

// FromYAML parses YAML bytes into Defaults.
func FromYAML(data []byte) (Defaults, error) {
	var d Defaults
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Defaults{}, fmt.Errorf("config: parse yaml: %w", err)
	}
	return d, nil
}

// GraphConfig folds d over graph.DefaultConfig(), the same override
// semantics graph.ExecutionOptions uses against a Program's own
// defaults: a field absent from the YAML (left at its zero value)
// inherits the baseline rather than overwriting it with zero.
func (d Defaults) GraphConfig() graph.Config {
	cfg := graph.DefaultConfig()
	if d.MaxSteps != 0 {
		cfg.MaxSteps = d.MaxSteps
	}
	if d.CycleDetection != nil {
		cfg.CycleDetection = *d.CycleDetection
	}
	if d.CycleWindow != 0 {
		cfg.CycleWindow = d.CycleWindow
	}
	return cfg
}

// ProgramOptions projects d into the graph.Option[S] builders a
// Program construction call accepts, so a loaded Defaults can be
// applied in one line: graph.NewProgram[S](config.ProgramOptions[S](d)...).
func ProgramOptions[S any](d Defaults) []graph.Option[S] {
	cfg := d.GraphConfig()
	opts := []graph.Option[S]{
		graph.WithMaxSteps[S](cfg.MaxSteps),
		graph.WithCycleDetection[S](cfg.CycleDetection),
		graph.WithCycleWindow[S](cfg.CycleWindow),
	}
	if d.RunWallClock > 0 {
		opts = append(opts, graph.WithRunWallClockBudget[S](time.Duration(d.RunWallClock)))
	}
	return opts
}
