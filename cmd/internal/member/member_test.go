package member

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullName(t *testing.T) {
	m := Member{FirstName: " Jane ", LastName: "Doe"}
	assert.Equal(t, "Jane Doe", m.FullName())
}

func TestInMemoryDirectory(t *testing.T) {
	ctx := context.Background()
	d := NewInMemoryDirectory(Member{ID: "m1", FirstName: "Jane", LastName: "Doe"})

	got, err := d.GetMember(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Jane", got.FirstName)

	_, err = d.GetMember(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = d.GetMember(ctx, "  ")
	require.ErrorIs(t, err, ErrInvalidInput)

	d.Delete("m1")
	_, err = d.GetMember(ctx, "m1")
	require.ErrorIs(t, err, ErrNotFound)
}
