package app

import (
	"testing"

	"memberdesk/cmd/security/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSecurityConfig(t *testing.T) {
	t.Setenv(token.HMACEnvKey, "")

	cfg := testConfig()
	require.NoError(t, ValidateSecurityConfig(cfg))

	bad := cfg
	bad.PublicBaseURL = "/relative"
	assert.ErrorContains(t, ValidateSecurityConfig(bad), "MEMBERDESK_PUBLIC_BASE_URL")

	bad = cfg
	bad.StaffJWTSecret = "short"
	assert.ErrorContains(t, ValidateSecurityConfig(bad), "MEMBERDESK_STAFF_JWT_SECRET")

	strict := cfg
	strict.RequireTokenHMAC = true
	assert.ErrorContains(t, ValidateSecurityConfig(strict), "is missing")

	t.Setenv(token.HMACEnvKey, "too-short")
	assert.ErrorContains(t, ValidateSecurityConfig(strict), "too short")

	t.Setenv(token.HMACEnvKey, "0123456789abcdef0123456789abcdef")
	assert.NoError(t, ValidateSecurityConfig(strict))
}
