package role

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// rawDefinition mirrors Definition but decodes spec.triggers as raw YAML
// nodes (yaml.v3 cannot natively express a discriminated union) and
// guardrails/autonomy as optional so defaults can be layered in.
type rawDefinition struct {
	APIVersion string   `yaml:"apiVersion"`
	Kind       string   `yaml:"kind"`
	Metadata   Metadata `yaml:"metadata"`
	Spec       rawSpec  `yaml:"spec"`
}

type rawSpec struct {
	Role       string          `yaml:"role"`
	Model      Model           `yaml:"model"`
	Triggers   []yaml.Node     `yaml:"triggers"`
	Autonomy   *AutonomyConfig `yaml:"autonomy"`
	Guardrails *Guardrails     `yaml:"guardrails"`
	Memory     *MemoryConfig   `yaml:"memory"`
	Tools      []string        `yaml:"tools"`
}

func (r rawDefinition) toDefinition() (*Definition, error) {
	def := &Definition{
		APIVersion: r.APIVersion,
		Kind:       r.Kind,
		Metadata:   r.Metadata,
		Spec: Spec{
			Role:   r.Spec.Role,
			Model:  r.Spec.Model,
			Memory: r.Spec.Memory,
			Tools:  r.Spec.Tools,
		},
	}

	if r.Spec.Guardrails != nil {
		def.Spec.Guardrails = *r.Spec.Guardrails
	} else {
		def.Spec.Guardrails = DefaultGuardrails()
	}
	if def.Spec.Guardrails.MaxIterations == 0 {
		def.Spec.Guardrails.MaxIterations = 10
	}

	if r.Spec.Autonomy != nil {
		def.Spec.Autonomy = r.Spec.Autonomy
	}

	for i := range r.Spec.Triggers {
		node := r.Spec.Triggers[i]
		cfg, err := decodeTrigger(&node)
		if err != nil {
			if errors.Is(err, errUnknownTriggerType) {
				// Unknown variants are skipped (feature-gating); only
				// malformed known types are fatal.
				continue
			}
			return nil, fmt.Errorf("spec.triggers[%d]: %w", i, err)
		}
		def.Spec.Triggers = append(def.Spec.Triggers, cfg)
	}

	return def, nil
}
