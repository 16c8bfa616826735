package pih

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortedKeysUTF16Order(t *testing.T) {
	obj := Object{
		"b":          Int(1),
		"a":          Int(2),
		"｡":          Int(3),
		"\U0001F600": Int(4),
	}
	assert.Equal(t, []string{"a", "b", "\U0001F600", "｡"}, obj.SortedKeys())
}

func TestSortedKeysPrefix(t *testing.T) {
	obj := Object{"ab": Int(1), "a": Int(2), "abc": Int(3)}
	assert.Equal(t, []string{"a", "ab", "abc"}, obj.SortedKeys())
}

func TestValueEqual(t *testing.T) {
	assert.True(t, Equal(Null{}, Null{}))
	assert.True(t, Equal(String("x"), String("x")))
	assert.True(t, Equal(Int(5), Int(5)))
	assert.True(t, Equal(Bool(true), Bool(true)))
	assert.True(t, Equal(
		Array{Int(1), Object{"k": String("v")}},
		Array{Int(1), Object{"k": String("v")}},
	))

	assert.False(t, Equal(String("x"), String("y")))
	assert.False(t, Equal(Int(1), Bool(true)))
	assert.False(t, Equal(Array{Int(1)}, Array{Int(1), Int(2)}))
	assert.False(t, Equal(Object{"k": Int(1)}, Object{"k": Int(2)}))
	assert.False(t, Equal(Object{"k": Int(1)}, Object{"j": Int(1)}))
}

func TestObjectUnmarshalJSON(t *testing.T) {
	var obj Object
	require.NoError(t, json.Unmarshal([]byte(`{"s":"v","n":3,"b":false,"z":null,"list":[1,"two"],"nested":{"k":1}}`), &obj))

	assert.Equal(t, String("v"), obj["s"])
	assert.Equal(t, Int(3), obj["n"])
	assert.Equal(t, Bool(false), obj["b"])
	assert.Equal(t, Null{}, obj["z"])
	assert.Equal(t, Array{Int(1), String("two")}, obj["list"])
	assert.Equal(t, Object{"k": Int(1)}, obj["nested"])
}

func TestObjectUnmarshalRejectsFloats(t *testing.T) {
	var obj Object
	err := json.Unmarshal([]byte(`{"w":1.5}`), &obj)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats not allowed")
}

func TestObjectMarshalSortedKeys(t *testing.T) {
	data, err := json.Marshal(Object{"b": Int(2), "a": Int(1), "c": Null{}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2,"c":null}`, string(data))
}

func TestFromGo(t *testing.T) {
	v, err := FromGo(map[string]any{
		"s":    "str",
		"n":    int64(9),
		"b":    true,
		"z":    nil,
		"list": []any{1, "x"},
	})
	require.NoError(t, err)
	obj, ok := v.(Object)
	require.True(t, ok)
	assert.Equal(t, String("str"), obj["s"])
	assert.Equal(t, Int(9), obj["n"])
	assert.Equal(t, Bool(true), obj["b"])
	assert.Equal(t, Null{}, obj["z"])
	assert.Equal(t, Array{Int(1), String("x")}, obj["list"])
}

func TestFromGoNarrowsWholeFloats(t *testing.T) {
	v, err := FromGo(float64(4))
	require.NoError(t, err)
	assert.Equal(t, Int(4), v)
}

func TestFromGoRejectsFractionalFloats(t *testing.T) {
	_, err := FromGo(1.25)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forbidden")

	_, err = FromGo(json.Number("2.5"))
	require.Error(t, err)
}

func TestFromGoJSONNumber(t *testing.T) {
	v, err := FromGo(json.Number("123"))
	require.NoError(t, err)
	assert.Equal(t, Int(123), v)

	_, err = FromGo(json.Number("1e3"))
	require.Error(t, err)
}
