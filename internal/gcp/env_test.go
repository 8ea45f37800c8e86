package gcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("DT_STR", "value")
	t.Setenv("DT_BOOL", "false")
	t.Setenv("DT_INT", "7")
	t.Setenv("DT_FLOAT", "2.5")
	t.Setenv("DT_BAD", "nope")

	assert.Equal(t, "value", GetEnv("DT_STR", "x"))
	assert.Equal(t, "x", GetEnv("DT_MISSING", "x"))
	assert.False(t, GetEnvBool("DT_BOOL", true))
	assert.True(t, GetEnvBool("DT_BAD", true))
	assert.Equal(t, 7, GetEnvInt("DT_INT", 1))
	assert.Equal(t, 1, GetEnvInt("DT_BAD", 1))
	assert.Equal(t, 2.5, GetEnvFloat("DT_FLOAT", 1))
	assert.Equal(t, 1.0, GetEnvFloat("DT_MISSING", 1))
}

func TestTenantPrefix(t *testing.T) {
	assert.Equal(t, "contoso_onmicrosoft_com", TenantPrefix("Contoso.onmicrosoft.com"))
	assert.Equal(t, "admin_contoso_com", TenantPrefix(" admin@contoso.com "))
	assert.Equal(t, "0f1e2d3c-aaaa", TenantPrefix("0F1E2D3C-AAAA"))
}
