package config

import (
	"fmt"
	"os"
	"strings"
)

// defaultSensitiveFields lists the JSON keys whose values are replaced
// wholesale during tool IO redaction.
const defaultSensitiveFields = "api_key,apikey,authorization,password,secret,token,access_token,secret_key,private_key"

// MaskingConfig holds tool IO redaction settings. Redaction runs on tool
// inputs and outputs before they are persisted or emitted.
type MaskingConfig struct {
	// Enabled turns redaction off entirely when false.
	Enabled bool

	// SensitiveFields are JSON key names (matched case-insensitively)
	// whose values are replaced wholesale.
	SensitiveFields []string

	// ExtraPatterns are additional named regexes applied on top of the
	// builtin set. Entries that fail to compile are logged and skipped at
	// service construction.
	ExtraPatterns map[string]string
}

// LoadMaskingConfig reads redaction settings from the environment.
//
// TOOL_REDACTION_PATTERNS holds extra patterns as semicolon-separated
// name=regex pairs, e.g. "ticket=JIRA-[0-9]+;badge=B[0-9]{6}".
func LoadMaskingConfig() (*MaskingConfig, error) {
	enabled, err := getEnvBool("masking", "TOOL_REDACTION_ENABLED", true)
	if err != nil {
		return nil, err
	}

	var fields []string
	for _, f := range strings.Split(getEnv("TOOL_SENSITIVE_FIELDS", defaultSensitiveFields), ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}

	extras := map[string]string{}
	if raw := os.Getenv("TOOL_REDACTION_PATTERNS"); raw != "" {
		for _, pair := range strings.Split(raw, ";") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			name, pattern, ok := strings.Cut(pair, "=")
			if !ok || strings.TrimSpace(name) == "" || pattern == "" {
				return nil, NewValidationError("masking", "", "TOOL_REDACTION_PATTERNS",
					fmt.Errorf("%w: %q", ErrInvalidValue, pair))
			}
			extras[strings.TrimSpace(name)] = pattern
		}
	}

	return &MaskingConfig{
		Enabled:         enabled,
		SensitiveFields: fields,
		ExtraPatterns:   extras,
	}, nil
}
