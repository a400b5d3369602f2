package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/weaveai/weaveai/pkg/models"
)

// ScenarioPreset is a named bundle of request overrides. A request naming a
// preset gets the preset's values for every option it left unset; explicit
// request fields always win.
type ScenarioPreset struct {
	DebateRounds     *int               `yaml:"debate_rounds"`
	EnableFollowup   *bool              `yaml:"enable_followup"`
	EnableWebSearch  *bool              `yaml:"enable_websearch"`
	RetryMaxAttempts *int               `yaml:"retry_max_attempts"`
	RetryBackoffMS   *int               `yaml:"retry_backoff_ms"`
	DegradeMode      models.DegradeMode `yaml:"degrade_mode"`
}

// Apply fills unset request fields from the preset.
func (p *ScenarioPreset) Apply(req *models.MarketInsightRequest) {
	if req.DebateRounds == nil && p.DebateRounds != nil {
		req.DebateRounds = p.DebateRounds
	}
	if req.EnableFollowup == nil && p.EnableFollowup != nil {
		req.EnableFollowup = p.EnableFollowup
	}
	if req.EnableWebSearch == nil && p.EnableWebSearch != nil {
		req.EnableWebSearch = p.EnableWebSearch
	}
	if req.RetryMaxAttempts == nil && p.RetryMaxAttempts != nil {
		req.RetryMaxAttempts = p.RetryMaxAttempts
	}
	if req.RetryBackoffMS == nil && p.RetryBackoffMS != nil {
		req.RetryBackoffMS = p.RetryBackoffMS
	}
	if req.DegradeMode == "" && p.DegradeMode != "" {
		req.DegradeMode = p.DegradeMode
	}
}

// PresetRegistry holds the scenario presets by name.
type PresetRegistry struct {
	presets map[string]*ScenarioPreset
}

// presetsFile is the YAML shape of an optional presets file.
type presetsFile struct {
	Presets map[string]*ScenarioPreset `yaml:"presets"`
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

// builtinPresets returns the three rehearsal presets: a sub-minute run with
// no debate, a standard run with one round, and a full-depth run.
func builtinPresets() map[string]*ScenarioPreset {
	return map[string]*ScenarioPreset{
		"fast60": {
			DebateRounds:     intPtr(0),
			EnableFollowup:   boolPtr(false),
			RetryMaxAttempts: intPtr(1),
		},
		"standard3m": {
			DebateRounds:   intPtr(1),
			EnableFollowup: boolPtr(false),
		},
		"deep": {
			DebateRounds:   intPtr(2),
			EnableFollowup: boolPtr(true),
		},
	}
}

// NewPresetRegistry builds the registry from the built-in presets, merged
// with the optional presets file (user entries override built-ins).
// path may be empty.
func NewPresetRegistry(path string) (*PresetRegistry, error) {
	presets := builtinPresets()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, NewLoadError(path, err)
		}

		// Preset files may reference environment variables with
		// {{.VAR}} template syntax (e.g. for CI-tuned retry budgets).
		data = expandEnv(data)

		var file presetsFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
		}
		for name, p := range file.Presets {
			if p == nil {
				continue
			}
			if p.DegradeMode != "" && !p.DegradeMode.IsValid() {
				return nil, NewValidationError("preset", name, "degrade_mode", ErrInvalidValue)
			}
			presets[name] = p
		}
	}

	return &PresetRegistry{presets: presets}, nil
}

// Get retrieves a preset by name.
func (r *PresetRegistry) Get(name string) (*ScenarioPreset, error) {
	p, ok := r.presets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPresetNotFound, name)
	}
	return p, nil
}

// Names returns the registered preset names (unordered).
func (r *PresetRegistry) Names() []string {
	out := make([]string, 0, len(r.presets))
	for name := range r.presets {
		out = append(out, name)
	}
	return out
}

// Len returns the number of registered presets.
func (r *PresetRegistry) Len() int {
	return len(r.presets)
}

// expandEnv substitutes {{.VAR}} references with environment variable
// values. Unknown variables expand to the empty string. On template errors
// the original data is returned unchanged so the YAML parser can produce a
// clearer message.
func expandEnv(data []byte) []byte {
	tmpl, err := template.New("presets").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	env := map[string]string{}
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, env); err != nil {
		return data
	}
	return buf.Bytes()
}
