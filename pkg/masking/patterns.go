package masking

import (
	"log/slog"
	"regexp"
	"sort"
)

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

type patternSpec struct {
	pattern     string
	replacement string
	description string
}

// builtinPatterns is the default sensitive-data sweep applied to tool inputs
// and outputs. Configured extras are applied on top.
func builtinPatterns() map[string]patternSpec {
	return map[string]patternSpec{
		"api_key": {
			pattern:     `(?i)(?:api[_-]?key|apikey)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-]{16,})["']?`,
			replacement: `"api_key": "__REDACTED_API_KEY__"`,
			description: "API keys",
		},
		"password": {
			pattern:     `(?i)(?:password|pwd|passwd)["']?\s*[:=]\s*["']?([^"'\s\n]{6,})["']?`,
			replacement: `"password": "__REDACTED_PASSWORD__"`,
			description: "Passwords",
		},
		"token": {
			pattern:     `(?i)(?:token|bearer|jwt)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-\.]{20,})["']?`,
			replacement: `"token": "__REDACTED_TOKEN__"`,
			description: "Access tokens",
		},
		"secret_key": {
			pattern:     `(?i)(?:secret[_-]?key|client[_-]?secret)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-\.]{16,})["']?`,
			replacement: `"secret_key": "__REDACTED_SECRET_KEY__"`,
			description: "Secret keys",
		},
		"private_key": {
			pattern:     `(?i)(?:private[_-]?key)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-\.]{16,})["']?`,
			replacement: `"private_key": "__REDACTED_PRIVATE_KEY__"`,
			description: "Private keys",
		},
		"certificate": {
			pattern:     `(?s)-----BEGIN [A-Z ]+-----.*?-----END [A-Z ]+-----`,
			replacement: `__REDACTED_CERTIFICATE__`,
			description: "PEM blocks",
		},
		"email": {
			pattern:     `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9]+(?:[.-][A-Za-z0-9]+)*\.[A-Za-z]{2,63}\b`,
			replacement: `__REDACTED_EMAIL__`,
			description: "Email addresses",
		},
	}
}

// compilePatterns compiles the builtin set plus configured extras, keyed
// "custom:{name}". Invalid patterns are logged and skipped. The result is
// ordered by name so overlapping patterns apply deterministically.
func compilePatterns(extras map[string]string) []*CompiledPattern {
	specs := builtinPatterns()
	for name, pattern := range extras {
		specs["custom:"+name] = patternSpec{
			pattern:     pattern,
			replacement: RedactedValue,
			description: "configured pattern",
		}
	}

	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	compiled := make([]*CompiledPattern, 0, len(specs))
	for _, name := range names {
		spec := specs[name]
		re, err := regexp.Compile(spec.pattern)
		if err != nil {
			slog.Error("Failed to compile masking pattern, skipping",
				"pattern", name, "error", err)
			continue
		}
		compiled = append(compiled, &CompiledPattern{
			Name:        name,
			Regex:       re,
			Replacement: spec.replacement,
			Description: spec.description,
		})
	}
	return compiled
}
