package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionKeyDeterminism(t *testing.T) {
	params := IRObject{"name": IRString("x"), "count": IRInt(2)}

	k1, err := ActionKey("rename", params, []int64{3, 4})
	require.NoError(t, err)
	k2, err := ActionKey("rename", params.Clone(), []int64{3, 4})
	require.NoError(t, err)

	assert.Equal(t, k1, k2, "ActionKey must be deterministic")
	assert.Len(t, k1, 64, "SHA-256 hex is 64 characters")
}

func TestActionKeyChangesWithInput(t *testing.T) {
	params := IRObject{"name": IRString("x")}

	base, err := ActionKey("rename", params, []int64{1})
	require.NoError(t, err)
	otherFn, err := ActionKey("remove", params, []int64{1})
	require.NoError(t, err)
	otherParams, err := ActionKey("rename", IRObject{"name": IRString("y")}, []int64{1})
	require.NoError(t, err)
	otherInputs, err := ActionKey("rename", params, []int64{2})
	require.NoError(t, err)
	reordered, err := ActionKey("rename", params, []int64{1, 2})
	require.NoError(t, err)
	swapped, err := ActionKey("rename", params, []int64{2, 1})
	require.NoError(t, err)

	assert.NotEqual(t, base, otherFn)
	assert.NotEqual(t, base, otherParams)
	assert.NotEqual(t, base, otherInputs)
	assert.NotEqual(t, reordered, swapped, "input order is part of the identity")
}

func TestActionKeyIgnoresNullParameters(t *testing.T) {
	k1, err := ActionKey("set", IRObject{"a": IRInt(1)}, nil)
	require.NoError(t, err)
	k2, err := ActionKey("set", IRObject{"a": IRInt(1), "b": IRNull{}}, nil)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestHashDomainSeparation(t *testing.T) {
	v := IRString("same")
	h1, err := Hash(DomainAction, v)
	require.NoError(t, err)
	h2, err := Hash(DomainObject, v)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestObjectHash(t *testing.T) {
	assert.Equal(t, ObjectHash("a", "data"), ObjectHash("a", "data"))
	assert.NotEqual(t, ObjectHash("a", "data"), ObjectHash("a", "visual"))
	// Boundary ambiguity: "ab"+"c" must differ from "a"+"bc".
	assert.NotEqual(t, ObjectHash("ab", "c"), ObjectHash("a", "bc"))
}
