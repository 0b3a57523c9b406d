package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Plan defines the credit ceilings granted to an account tier.
type Plan struct {
	Name                    string `yaml:"name"`
	MaxImageGenerations     int    `yaml:"max_image_generations"`
	MaxModelTrainings       int    `yaml:"max_model_trainings"`
	InitialImageGenerations int    `yaml:"initial_image_generations"`
	InitialModelTrainings   int    `yaml:"initial_model_trainings"`
}

type PlansFile struct {
	DefaultPlan string `yaml:"default_plan"`
	Plans       []Plan `yaml:"plans"`
}

// LoadPlans reads the credit plan definitions from a YAML file.
func LoadPlans(path string) (*PlansFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plans file: %w", err)
	}

	var plans PlansFile
	if err := yaml.Unmarshal(data, &plans); err != nil {
		return nil, fmt.Errorf("failed to parse plans file: %w", err)
	}
	if len(plans.Plans) == 0 {
		return nil, fmt.Errorf("plans file %s defines no plans", path)
	}

	return &plans, nil
}

// Default returns the plan named by default_plan, falling back to the
// first entry when the name does not resolve.
func (p *PlansFile) Default() Plan {
	for _, plan := range p.Plans {
		if plan.Name == p.DefaultPlan {
			return plan
		}
	}
	return p.Plans[0]
}
