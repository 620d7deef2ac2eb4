package member

import (
	"context"
	"testing"

	"memberdesk/cmd/internal/pgtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresDirectory_GetMember(t *testing.T) {
	pool := pgtest.Open(t)
	id := pgtest.InsertMember(t, pool, "Grace", "Hopper", "grace@example.com")

	d, err := NewPostgresDirectory(pool)
	require.NoError(t, err)

	ctx := context.Background()
	m, err := d.GetMember(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper", m.FullName())
	assert.Equal(t, "grace@example.com", m.Email)

	_, err = d.GetMember(ctx, "no-such-member")
	require.ErrorIs(t, err, ErrNotFound)
}
