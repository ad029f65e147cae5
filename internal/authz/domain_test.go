package authz

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGrantAllows(t *testing.T) {
	g := Grant{CanAdd: true, CanDelete: true}
	require.True(t, g.Allows(OpAdd))
	require.False(t, g.Allows(OpEdit))
	require.True(t, g.Allows(OpDelete))
	require.False(t, Grant{}.Allows(OpAdd))
}

func TestParseResource(t *testing.T) {
	r, err := ParseResource("product")
	require.NoError(t, err)
	require.Equal(t, ResourceProduct, r)

	r, err = ParseResource("pricehist")
	require.NoError(t, err)
	require.Equal(t, ResourcePriceHistory, r)

	_, err = ParseResource("profiles")
	require.Error(t, err)
}

func TestParseOperation(t *testing.T) {
	for name, want := range map[string]Operation{"add": OpAdd, "edit": OpEdit, "delete": OpDelete} {
		op, err := ParseOperation(name)
		require.NoError(t, err)
		require.Equal(t, want, op)
		require.Equal(t, name, op.String())
	}
	_, err := ParseOperation("read")
	require.Error(t, err)
}
