package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/modpilot/internal/config"
)

func TestCheckConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Backend.URL = "https://deps.example.com/api"
	cfg.GitLab.Token = "glpat-abcdefgh"

	result := CheckConfig(cfg, []string{
		"HOME=/root",
		"MODPILOT_BACKEND_URL=https://deps.example.com/api",
		"MODPILOT_GITLAB_TOKEN=glpat-abcdefgh",
		"MODPILOT_DATABASE_URL=postgres://u:p@localhost/db",
	})

	assert.Equal(t, map[string]string{
		"MODPILOT_BACKEND_URL":  "https://deps.example.com/api",
		"MODPILOT_GITLAB_TOKEN": "gl****gh",
		"MODPILOT_DATABASE_URL": "po****db",
	}, result.Overrides)
	assert.Len(t, result.Warnings, 2)

	var out bytes.Buffer
	PrintConfigCheck(&out, result)
	assert.Contains(t, out.String(), "MODPILOT_GITLAB_TOKEN = gl****gh")
	assert.Contains(t, out.String(), "submission history is kept in memory")
	assert.NotContains(t, out.String(), "glpat-abcdefgh")
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "****", maskSecret("short"))
	assert.Equal(t, "ab****yz", maskSecret("abcdefghxyz"))
}
