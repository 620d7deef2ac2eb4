package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"memberdesk/cmd/internal/claimapi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStaffTokenCommand(t *testing.T) {
	const secret = "cli-test-staff-secret-0123456789abcdef"
	t.Setenv("MEMBERDESK_STAFF_JWT_SECRET", secret)
	t.Setenv("MEMBERDESK_STAFF_JWT_ISSUER", "")
	t.Setenv("MEMBERDESK_STAFF_JWT_AUDIENCE", "")

	out, err := run(t, "staff-token", "--actor", "staff-9", "--role", "admin")
	require.NoError(t, err)

	auth, err := claimapi.NewStaffAuth(secret, "memberdesk", "memberdesk-staff")
	require.NoError(t, err)
	claims, err := auth.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "staff-9", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
}

func TestIssueCommand_RejectsUnknownPurpose(t *testing.T) {
	_, err := run(t, "issue", "--member", "m-1", "--purpose", "tax_return")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown purpose")
}

func TestMigrateCommand_RequiresDatabase(t *testing.T) {
	t.Setenv("MEMBERDESK_DATABASE_URL", "")

	_, err := run(t, "migrate", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MEMBERDESK_DATABASE_URL")

	_, err = run(t, "migrate", "sideways")
	require.Error(t, err)
}
