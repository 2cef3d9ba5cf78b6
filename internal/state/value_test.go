package state

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToValueCoercion(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected Value
	}{
		{"nil", nil, Null{}},
		{"string", "hi", String("hi")},
		{"int", 7, Int(7)},
		{"int64", int64(-3), Int(-3)},
		{"bool", true, Bool(true)},
		{"whole float", float64(42), Int(42)},
		{"slice", []any{"a", 1}, Array{String("a"), Int(1)}},
		{"map", map[string]any{"k": "v"}, Object{"k": String("v")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToValue(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestToValueRejectsFractional(t *testing.T) {
	_, err := ToValue(3.5)
	assert.Error(t, err)

	_, err = ToValue([]any{1.25})
	assert.Error(t, err)
}

func TestToGoRoundTrip(t *testing.T) {
	obj := Object{
		"title": String("Test"),
		"count": Int(3),
		"tags":  Array{String("a")},
		"meta":  Null{},
	}

	back, err := ToObject(ToGo(obj).(map[string]any))
	require.NoError(t, err)
	assert.True(t, Equal(obj, back))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Null{}, Null{}))
	assert.True(t, Equal(nil, Null{}))
	assert.True(t, Equal(Object{"a": Int(1)}, Object{"a": Int(1)}))
	assert.False(t, Equal(Object{"a": Int(1)}, Object{"a": Int(2)}))
	assert.False(t, Equal(String("1"), Int(1)))
	assert.True(t, Equal(Array{Bool(true)}, Array{Bool(true)}))
	assert.False(t, Equal(Array{Bool(true)}, Array{}))
}

func TestObjectSortedKeys(t *testing.T) {
	obj := Object{"b": Int(1), "a": Int(2), "c": Int(3)}
	assert.Equal(t, []string{"a", "b", "c"}, obj.SortedKeys())
}

func TestUnmarshalValue(t *testing.T) {
	v, err := UnmarshalValue([]byte(`{"title":"x","n":5,"ok":true,"gone":null,"list":[1]}`))
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok)
	assert.Equal(t, String("x"), obj["title"])
	assert.Equal(t, Int(5), obj["n"])
	assert.Equal(t, Bool(true), obj["ok"])
	assert.Equal(t, Null{}, obj["gone"])
	assert.Equal(t, Array{Int(1)}, obj["list"])
}

func TestUnmarshalValueRejectsFractional(t *testing.T) {
	_, err := UnmarshalValue([]byte(`{"pi":3.14}`))
	assert.Error(t, err)
}

func TestObjectMarshalJSONSorted(t *testing.T) {
	data, err := json.Marshal(Object{"z": Int(1), "a": Int(2)})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"z":1}`, string(data))
}
