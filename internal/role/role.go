// Package role loads the declarative role definition: a Kubernetes-CRD-shaped
// YAML document naming the model, the triggers to listen on, the guardrails,
// and the autonomy policy.
package role

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Definition is the top-level role document.
type Definition struct {
	APIVersion string   `yaml:"apiVersion"`
	Kind       string   `yaml:"kind"`
	Metadata   Metadata `yaml:"metadata"`
	Spec       Spec     `yaml:"spec"`
}

// Metadata identifies the role.
type Metadata struct {
	Name string `yaml:"name"`
}

// Spec is the body of the role definition.
type Spec struct {
	Role       string          `yaml:"role"`
	Model      Model           `yaml:"model"`
	Triggers   []TriggerConfig `yaml:"triggers"`
	Autonomy   *AutonomyConfig `yaml:"autonomy,omitempty"`
	Guardrails Guardrails      `yaml:"guardrails"`
	Memory     *MemoryConfig   `yaml:"memory,omitempty"`
	Tools      []string        `yaml:"tools,omitempty"`
}

// Model selects the LLM provider and model name.
type Model struct {
	Provider string `yaml:"provider"`
	Name     string `yaml:"name"`
}

// Guardrails bounds daemon- and autonomous-run resource consumption.
type Guardrails struct {
	MaxIterations            int    `yaml:"max_iterations"`
	AutonomousTokenBudget    *int64 `yaml:"autonomous_token_budget,omitempty"`
	AutonomousTimeoutSeconds *int   `yaml:"autonomous_timeout_seconds,omitempty"`
	DaemonTokenBudget        *int64 `yaml:"daemon_token_budget,omitempty"`
	DaemonDailyTokenBudget   *int64 `yaml:"daemon_daily_token_budget,omitempty"`
}

// AutonomyConfig parameterizes the autonomous loop. See DefaultAutonomy
// for the values used when the role document omits the block.
type AutonomyConfig struct {
	ContinuationPrompt      string  `yaml:"continuation_prompt"`
	MaxHistoryMessages      int     `yaml:"max_history_messages"`
	MaxPlanSteps            int     `yaml:"max_plan_steps"`
	IterationDelaySeconds   float64 `yaml:"iteration_delay_seconds"`
	MaxScheduledPerRun      int     `yaml:"max_scheduled_per_run"`
	MaxScheduledTotal       int     `yaml:"max_scheduled_total"`
	MaxScheduleDelaySeconds int     `yaml:"max_schedule_delay_seconds"`
	MaxNoToolCallIterations int     `yaml:"max_no_tool_call_iterations"`
}

// MemoryConfig selects the episodic-memory / session-resume backend. The
// DSN itself is never read from the role file, only from the env var
// dsn_env names.
type MemoryConfig struct {
	Driver      string `yaml:"driver"` // "sqlite" (default) or "postgres"
	Path        string `yaml:"path,omitempty"`
	DSNEnv      string `yaml:"dsn_env,omitempty"`
	Consolidate bool   `yaml:"consolidate,omitempty"`
}

// AutonomyOrDefault returns the configured autonomy policy with defaults
// layered under any omitted field, or the full defaults when the role
// document omits the autonomy block entirely.
func (s Spec) AutonomyOrDefault() AutonomyConfig {
	def := DefaultAutonomy()
	if s.Autonomy == nil {
		return def
	}
	a := *s.Autonomy
	if a.ContinuationPrompt == "" {
		a.ContinuationPrompt = def.ContinuationPrompt
	}
	if a.MaxHistoryMessages <= 0 {
		a.MaxHistoryMessages = def.MaxHistoryMessages
	}
	if a.MaxPlanSteps <= 0 {
		a.MaxPlanSteps = def.MaxPlanSteps
	}
	if a.MaxScheduledPerRun <= 0 {
		a.MaxScheduledPerRun = def.MaxScheduledPerRun
	}
	if a.MaxScheduledTotal <= 0 {
		a.MaxScheduledTotal = def.MaxScheduledTotal
	}
	if a.MaxScheduleDelaySeconds <= 0 {
		a.MaxScheduleDelaySeconds = def.MaxScheduleDelaySeconds
	}
	if a.MaxNoToolCallIterations <= 0 {
		a.MaxNoToolCallIterations = def.MaxNoToolCallIterations
	}
	return a
}

// DefaultGuardrails returns the guardrail defaults.
func DefaultGuardrails() Guardrails {
	return Guardrails{MaxIterations: 10}
}

// DefaultAutonomy returns the autonomy-policy defaults.
func DefaultAutonomy() AutonomyConfig {
	return AutonomyConfig{
		ContinuationPrompt: "Continue working on the task. Review your progress so far and " +
			"decide your next step. If you have completed the task, call the " +
			"finish_task tool with a summary.",
		MaxHistoryMessages:      40,
		MaxPlanSteps:            20,
		IterationDelaySeconds:   0,
		MaxScheduledPerRun:      3,
		MaxScheduledTotal:       50,
		MaxScheduleDelaySeconds: 86400,
		MaxNoToolCallIterations: 3,
	}
}

// Load reads and decodes a role definition from path, applying defaults for
// omitted guardrail/autonomy/trigger fields.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading role file %s: %w", path, err)
	}

	var raw rawDefinition
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing role file %s: %w", path, err)
	}

	def, err := raw.toDefinition()
	if err != nil {
		return nil, fmt.Errorf("decoding role file %s: %w", path, err)
	}
	if err := def.validate(); err != nil {
		return nil, fmt.Errorf("validating role file %s: %w", path, err)
	}
	return def, nil
}

func (d *Definition) validate() error {
	if d.Spec.Role == "" {
		return fmt.Errorf("spec.role is required")
	}
	if d.Spec.Model.Provider == "" || d.Spec.Model.Name == "" {
		return fmt.Errorf("spec.model.provider and spec.model.name are required")
	}
	if len(d.Spec.Triggers) == 0 {
		return fmt.Errorf("spec.triggers must have at least one entry")
	}
	for i, t := range d.Spec.Triggers {
		switch cfg := t.(type) {
		case CronTrigger:
			if cfg.Schedule == "" {
				return fmt.Errorf("spec.triggers[%d]: cron schedule is required", i)
			}
		case FileWatchTrigger:
			if len(cfg.Paths) == 0 {
				return fmt.Errorf("spec.triggers[%d]: file_watch paths are required", i)
			}
		}
	}
	return nil
}
