package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Settings is the typed view of a ResolvedConfig used by the executor.
type Settings struct {
	Model          string   `json:"model" validate:"required"`
	Temperature    float64  `json:"temperature" validate:"gte=0,lte=2"`
	MaxTokens      int      `json:"max_tokens" validate:"gt=0"`
	SystemPrompts  []string `json:"system_prompts" validate:"dive,required"`
	OutputFormat   string   `json:"output_format" validate:"required,alphanum,max=16"`
	DependsOn      []string `json:"depends_on" validate:"dive,required,excludesall=/\\"`
	InputFiles     []string `json:"input_files"`
	InputPattern   string   `json:"input_pattern"`
	ContextFiles   []string `json:"context_files"`
	ContextPattern string   `json:"context_pattern"`
	Command        []string `json:"command"`
	Timeout        float64  `json:"timeout" validate:"gte=0"`
}

var settingsValidator = validator.New()

// Settings converts r into a typed Settings and validates it.
func (r *ResolvedConfig) Settings() (Settings, error) {
	s := Settings{
		Model:          r.String(KeyModel),
		Temperature:    r.Number(KeyTemperature),
		MaxTokens:      int(r.Number(KeyMaxTokens)),
		SystemPrompts:  r.List(KeySystemPrompts),
		OutputFormat:   r.String(KeyOutputFormat),
		DependsOn:      r.List(KeyDependsOn),
		InputFiles:     r.List(KeyInputFiles),
		InputPattern:   r.String(KeyInputPattern),
		ContextFiles:   r.List(KeyContextFiles),
		ContextPattern: r.String(KeyContextPattern),
		Command:        r.List(KeyCommand),
		Timeout:        r.Number(KeyTimeout),
	}
	if err := settingsValidator.Struct(s); err != nil {
		return s, fmt.Errorf("invalid configuration: %w", err)
	}
	return s, nil
}
