package pipeline

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"content-pipeline/internal/resilience/retry"
)

// Definition describes the stages of a pipeline, in execution order. It is
// read from YAML:
//
//	stages:
//	  - name: scout
//	    service: feed_api
//	    timeout: 2m
//	    max_retries: 2
//	  - name: generate
//	    service: llm_api
//	    critical: true
//	    backoff_base: 5s
//	    backoff_max: 1m
type Definition struct {
	Stages []StageSpec `yaml:"stages"`
}

// StageSpec is the static part of a Stage. Zero values take the defaults of
// retry.DefaultPolicy; max_retries may be set to 0 explicitly.
type StageSpec struct {
	Name          string        `yaml:"name"`
	Service       string        `yaml:"service"`
	Critical      bool          `yaml:"critical"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    *int          `yaml:"max_retries"`
	BackoffBase   time.Duration `yaml:"backoff_base"`
	BackoffMax    time.Duration `yaml:"backoff_max"`
	DLQMaxRetries int           `yaml:"dlq_max_retries"`
}

// Actions binds code to a stage name.
type Actions struct {
	Action    retry.Action
	Fallbacks []retry.Action
}

// DefaultDefinition is used when no pipeline file is configured.
func DefaultDefinition() Definition {
	return Definition{Stages: []StageSpec{
		{Name: "scout", Service: "feed_api", Timeout: 2 * time.Minute},
		{Name: "generate", Service: "llm_api", Critical: true, Timeout: 5 * time.Minute},
		{Name: "retention", Service: "store", Timeout: time.Minute},
	}}
}

// LoadDefinition reads a YAML definition. An empty path yields DefaultDefinition.
func LoadDefinition(path string) (Definition, error) {
	if path == "" {
		return DefaultDefinition(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read pipeline definition: %w", err)
	}
	return ParseDefinition(raw)
}

// ParseDefinition decodes and validates a YAML definition.
func ParseDefinition(raw []byte) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return Definition{}, fmt.Errorf("parse pipeline definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// Validate checks that stages are named uniquely and bound to a service.
func (d Definition) Validate() error {
	if len(d.Stages) == 0 {
		return errors.New("pipeline definition has no stages")
	}
	seen := make(map[string]bool, len(d.Stages))
	var errs []error
	for i, s := range d.Stages {
		switch {
		case s.Name == "":
			errs = append(errs, fmt.Errorf("stage %d: name is required", i))
		case seen[s.Name]:
			errs = append(errs, fmt.Errorf("stage %q: defined twice", s.Name))
		}
		seen[s.Name] = true
		if s.Service == "" {
			errs = append(errs, fmt.Errorf("stage %q: service is required", s.Name))
		}
		if s.Timeout < 0 || s.BackoffBase < 0 || s.BackoffMax < 0 {
			errs = append(errs, fmt.Errorf("stage %q: durations must not be negative", s.Name))
		}
		if s.MaxRetries != nil && *s.MaxRetries < 0 {
			errs = append(errs, fmt.Errorf("stage %q: max_retries must not be negative", s.Name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid pipeline definition: %w", errors.Join(errs...))
	}
	return nil
}

// Policy returns the retry policy of the stage.
func (s StageSpec) Policy() retry.Policy {
	p := retry.DefaultPolicy()
	if s.MaxRetries != nil {
		p.MaxRetries = *s.MaxRetries
	}
	if s.BackoffBase > 0 {
		p.BackoffBase = s.BackoffBase
	}
	if s.BackoffMax > 0 {
		p.BackoffMax = s.BackoffMax
	}
	return p
}

// Build turns the definition into runnable stages. Every stage needs an
// action; actions for stages not in the definition are ignored.
func (d Definition) Build(actions map[string]Actions) ([]Stage, error) {
	stages := make([]Stage, 0, len(d.Stages))
	for _, s := range d.Stages {
		a, ok := actions[s.Name]
		if !ok || a.Action == nil {
			return nil, fmt.Errorf("stage %q: no action registered", s.Name)
		}
		stages = append(stages, Stage{
			Name:          s.Name,
			Service:       s.Service,
			Critical:      s.Critical,
			Policy:        s.Policy(),
			Timeout:       s.Timeout,
			DLQMaxRetries: s.DLQMaxRetries,
			Action:        a.Action,
			Fallbacks:     a.Fallbacks,
		})
	}
	return stages, nil
}
