package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstituteEnvVars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{
			name:     "simple variable substitution",
			input:    "${TEST_VAR}",
			envVars:  map[string]string{"TEST_VAR": "value123"},
			expected: "value123",
		},
		{
			name:     "variable with default - variable exists",
			input:    "${TEST_VAR:default}",
			envVars:  map[string]string{"TEST_VAR": "actual"},
			expected: "actual",
		},
		{
			name:     "variable with default - variable missing",
			input:    "${MISSING_VAR:default}",
			envVars:  map[string]string{},
			expected: "default",
		},
		{
			name:     "multiple variables in string",
			input:    "https://${HOST}:${PORT}/relay",
			envVars:  map[string]string{"HOST": "localhost", "PORT": "8443"},
			expected: "https://localhost:8443/relay",
		},
		{
			name:     "variable with empty default",
			input:    "${EMPTY:}",
			envVars:  map[string]string{},
			expected: "",
		},
		{
			name:     "no substitution needed",
			input:    "plain string",
			envVars:  map[string]string{},
			expected: "plain string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				os.Setenv(k, v)
				defer os.Unsetenv(k)
			}

			assert.Equal(t, tt.expected, SubstituteEnvVars(tt.input))
		})
	}
}

func TestSubstituteEnvVarsInConfig(t *testing.T) {
	os.Setenv("RELAY_HOST", "relay.internal")
	defer os.Unsetenv("RELAY_HOST")

	cfg := &Config{
		Relay: &RelayConfig{BaseURL: "https://${RELAY_HOST}/api"},
	}
	SubstituteEnvVarsInConfig(cfg)

	assert.Equal(t, "https://relay.internal/api", cfg.Relay.BaseURL)
}

func TestGetEnvironment(t *testing.T) {
	os.Unsetenv("DESKTOP_ENV")
	os.Unsetenv("ENVIRONMENT")
	assert.Equal(t, "development", GetEnvironment())

	os.Setenv("DESKTOP_ENV", "Production")
	defer os.Unsetenv("DESKTOP_ENV")
	assert.Equal(t, "production", GetEnvironment())
	assert.True(t, IsProduction())
	assert.False(t, IsDevelopment())
}
