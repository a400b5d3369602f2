package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaveai/weaveai/pkg/config"
)

func testService(extras map[string]string) *Service {
	return NewService(&config.MaskingConfig{
		Enabled:         true,
		SensitiveFields: []string{"api_key", "authorization", "password", "secret", "token"},
		ExtraPatterns:   extras,
	})
}

func TestCompilePatterns(t *testing.T) {
	svc := testService(nil)

	require.Equal(t, len(builtinPatterns()), len(svc.patterns),
		"all builtin patterns should compile")
	for _, cp := range svc.patterns {
		assert.NotNil(t, cp.Regex, "pattern %s should have a compiled regex", cp.Name)
		assert.NotEmpty(t, cp.Replacement, "pattern %s should have a replacement", cp.Name)
	}
}

func TestCompilePatternsSkipsInvalid(t *testing.T) {
	svc := testService(map[string]string{
		"broken": `[invalid`,
		"ticket": `JIRA-[0-9]+`,
	})

	// The invalid extra is skipped, the valid one is compiled.
	require.Equal(t, len(builtinPatterns())+1, len(svc.patterns))

	var names []string
	for _, cp := range svc.patterns {
		names = append(names, cp.Name)
	}
	assert.Contains(t, names, "custom:ticket")
	assert.NotContains(t, names, "custom:broken")
}

func TestMaskTextBuiltins(t *testing.T) {
	svc := testService(nil)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "api key assignment",
			input: `api_key = "sk0123456789abcdef"`,
			want:  `"api_key": "__REDACTED_API_KEY__"`,
		},
		{
			name:  "password in config dump",
			input: "password = hunter221",
			want:  `"password": "__REDACTED_PASSWORD__"`,
		},
		{
			name:  "bearer token",
			input: "token: abcdefghij0123456789xyz",
			want:  `"token": "__REDACTED_TOKEN__"`,
		},
		{
			name:  "email in prose",
			input: "contact sales@acme-corp.io today",
			want:  "contact __REDACTED_EMAIL__ today",
		},
		{
			name:  "pem block",
			input: "-----BEGIN CERTIFICATE-----\nMIIBxyz\n-----END CERTIFICATE-----",
			want:  "__REDACTED_CERTIFICATE__",
		},
		{
			name:  "clean text untouched",
			input: "German consumer electronics demand grew 4% in Q2.",
			want:  "German consumer electronics demand grew 4% in Q2.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.MaskText(tt.input))
		})
	}
}

func TestMaskTextCustomPattern(t *testing.T) {
	svc := testService(map[string]string{"ticket": `JIRA-[0-9]+`})

	assert.Equal(t, "see "+RedactedValue, svc.MaskText("see JIRA-4431"))
}

func TestMaskTextDisabled(t *testing.T) {
	svc := NewService(&config.MaskingConfig{Enabled: false})

	text := `api_key = "sk0123456789abcdef"`
	assert.Equal(t, text, svc.MaskText(text))
	payload := map[string]any{"password": "hunter22"}
	assert.Equal(t, payload, svc.MaskPayload(payload))
}

func TestMaskPayload(t *testing.T) {
	svc := testService(nil)

	payload := map[string]any{
		"prompt": "forward findings to ceo@example.com",
		"options": map[string]any{
			"Authorization": "Bearer abc",
			"model":         "doubao-seed-1-6-250615",
		},
		"attempts": []any{
			map[string]any{"password": "hunter22"},
		},
		"count": 3,
	}

	masked := svc.MaskPayload(payload)

	assert.Equal(t, "forward findings to __REDACTED_EMAIL__", masked["prompt"])

	options := masked["options"].(map[string]any)
	assert.Equal(t, RedactedValue, options["Authorization"], "key match is case-insensitive")
	assert.Equal(t, "doubao-seed-1-6-250615", options["model"])

	attempts := masked["attempts"].([]any)
	first := attempts[0].(map[string]any)
	assert.Equal(t, RedactedValue, first["password"])

	// Numbers pass through the JSON round-trip as float64.
	assert.Equal(t, float64(3), masked["count"])

	// The input payload is never mutated.
	assert.Equal(t, "Bearer abc", payload["options"].(map[string]any)["Authorization"])
}

func TestMaskPayloadFailClosed(t *testing.T) {
	svc := testService(nil)

	masked := svc.MaskPayload(map[string]any{"bad": make(chan int)})

	require.Len(t, masked, 1)
	assert.Equal(t, failClosedNotice, masked["redacted"])
}

func TestMaskPayloadNil(t *testing.T) {
	svc := testService(nil)

	assert.Nil(t, svc.MaskPayload(nil))
}
