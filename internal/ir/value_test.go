package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRValueSealed(t *testing.T) {
	var _ IRValue = IRNull{}
	var _ IRValue = IRString("test")
	var _ IRValue = IRInt(42)
	var _ IRValue = IRBool(true)
	var _ IRValue = IRArray{IRString("a"), IRInt(1)}
	var _ IRValue = IRObject{"key": IRString("value")}
}

func TestIRObjectSortedKeys(t *testing.T) {
	obj := IRObject{"zebra": IRString("z"), "apple": IRString("a"), "banana": IRString("b")}
	assert.Equal(t, []string{"apple", "banana", "zebra"}, obj.SortedKeys())
}

func TestIRObjectSortedKeysUTF16Order(t *testing.T) {
	// U+1F600 encodes as a surrogate pair (0xD83D...) which sorts before
	// U+FF61 in UTF-16 even though its UTF-8 bytes sort after.
	obj := IRObject{"\uff61": IRInt(1), "\U0001F600": IRInt(2)}
	assert.Equal(t, []string{"\U0001F600", "\uff61"}, obj.SortedKeys())
}

func TestIRObjectJSONRoundTrip(t *testing.T) {
	obj := IRObject{
		"name":    IRString("x"),
		"big":     IRInt(9007199254740993), // > 2^53 survives exactly
		"flag":    IRBool(true),
		"cleared": IRNull{},
		"list":    IRArray{IRInt(1), IRString("two")},
		"nested":  IRObject{"k": IRString("v")},
	}

	data, err := json.Marshal(obj)
	require.NoError(t, err)

	var back IRObject
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, Equal(obj, back), "round trip must preserve values: %s", data)
}

func TestIRObjectUnmarshalRejectsFloat(t *testing.T) {
	var obj IRObject
	err := json.Unmarshal([]byte(`{"x": 1.5}`), &obj)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats not allowed")
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(nil, IRNull{}))
	assert.True(t, Equal(IRArray{IRInt(1)}, IRArray{IRInt(1)}))
	assert.False(t, Equal(IRArray{IRInt(1)}, IRArray{IRInt(2)}))
	assert.False(t, Equal(IRInt(1), IRString("1")))
	assert.False(t, Equal(IRObject{"a": IRInt(1)}, IRObject{"b": IRInt(1)}))
}

func TestFromGo(t *testing.T) {
	v, err := FromGo(map[string]any{
		"a": 1,
		"b": []any{"x", true},
		"c": float64(3),
		"d": nil,
	})
	require.NoError(t, err)
	assert.True(t, Equal(IRObject{
		"a": IRInt(1),
		"b": IRArray{IRString("x"), IRBool(true)},
		"c": IRInt(3),
		"d": IRNull{},
	}, v))

	_, err = FromGo(2.5)
	assert.Error(t, err)
}

func TestToGo(t *testing.T) {
	got := ToGo(IRObject{"a": IRArray{IRInt(1), IRString("s")}})
	assert.Equal(t, map[string]any{"a": []any{int64(1), "s"}}, got)
}

func TestCloneIsDeep(t *testing.T) {
	orig := IRObject{"list": IRArray{IRInt(1)}, "obj": IRObject{"k": IRInt(1)}}
	c := orig.Clone()
	c["list"].(IRArray)[0] = IRInt(9)
	c["obj"].(IRObject)["k"] = IRInt(9)
	assert.Equal(t, IRInt(1), orig["list"].(IRArray)[0])
	assert.Equal(t, IRInt(1), orig["obj"].(IRObject)["k"])
}

func TestIsSequence(t *testing.T) {
	assert.True(t, IsSequence(IRArray{}))
	assert.False(t, IsSequence(IRString("x")))
	assert.False(t, IsSequence(nil))
}
