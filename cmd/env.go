package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/modpilot/internal/config"
)

// ConfigCheckResult holds what the loaded configuration enables
type ConfigCheckResult struct {
	Overrides map[string]string // MODPILOT_ variables in effect (secrets masked)
	Warnings  []string          // optional features that are off
}

// CheckConfig reports environment overrides and disabled optional features
func CheckConfig(cfg *config.Config, environ []string) *ConfigCheckResult {
	result := &ConfigCheckResult{
		Overrides: make(map[string]string),
		Warnings:  []string{},
	}

	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, config.EnvPrefix) {
			continue
		}
		if isSecret(key) {
			value = maskSecret(value)
		}
		result.Overrides[key] = value
	}

	if cfg.Backend.Token == "" {
		result.Warnings = append(result.Warnings, "backend token is empty; requests are sent without Authorization")
	}
	if !cfg.GitLabEnabled() {
		result.Warnings = append(result.Warnings, "gitlab is not configured; branch listing is disabled")
	}
	if cfg.Database.URL == "" {
		result.Warnings = append(result.Warnings, "database is not configured; submission history is kept in memory")
	}

	return result
}

// PrintConfigCheck prints the configuration check results
func PrintConfigCheck(w io.Writer, result *ConfigCheckResult) {
	if len(result.Overrides) > 0 {
		keys := make([]string, 0, len(result.Overrides))
		for k := range result.Overrides {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintln(w, "Environment overrides:")
		for _, k := range keys {
			fmt.Fprintf(w, "   - %s = %s\n", k, result.Overrides[k])
		}
	}

	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "⚠ %s\n", warning)
	}
}

func isSecret(key string) bool {
	key = strings.ToUpper(key)
	return strings.HasSuffix(key, "_TOKEN") || strings.HasPrefix(key, config.EnvPrefix+"DATABASE_")
}

// maskSecret masks a secret value for display, showing only first and last 2 chars
func maskSecret(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:2] + "****" + value[len(value)-2:]
}

func printEnvironmentCheck(cfg *config.Config) {
	PrintConfigCheck(os.Stdout, CheckConfig(cfg, os.Environ()))
}
