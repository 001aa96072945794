package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	var _ Value = Null{}
	var _ Value = String("test")
	var _ Value = Int(42)
	var _ Value = Bool(true)
	var _ Value = Array{String("a"), Int(1)}
	var _ Value = Object{"key": String("value")}
}

func TestObjectSortedKeysUTF16Order(t *testing.T) {
	obj := Object{
		"a":  Int(1),
		"A":  Int(2),
		"aa": Int(3),
		"aA": Int(4),
		"Aa": Int(5),
		"AA": Int(6),
	}

	assert.Equal(t, []string{"A", "AA", "Aa", "a", "aA", "aa"}, obj.SortedKeys())
}

func TestObjectJSONRoundTrip(t *testing.T) {
	obj := Object{
		"schema_version": Int(2),
		"weights":        Object{"execution": Int(40), "cadence": Int(60)},
		"tags":           Array{String("x"), Bool(true)},
		"missing":        Null{},
	}

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"missing":null,"schema_version":2,"tags":["x",true],"weights":{"cadence":60,"execution":40}}`, string(data))

	var back Object
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, obj, back)
}

func TestObjectUnmarshalRejectsFloats(t *testing.T) {
	var obj Object
	err := json.Unmarshal([]byte(`{"weight": 0.5}`), &obj)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats")
}

func TestObjectUnmarshalRejectsNonObject(t *testing.T) {
	var obj Object
	require.Error(t, json.Unmarshal([]byte(`[1,2]`), &obj))
}

func TestFromNativeYAMLShapes(t *testing.T) {
	v, err := FromNative(map[string]any{
		"n":    7,
		"list": []any{"a", int64(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, Object{"n": Int(7), "list": Array{String("a"), Int(2)}}, v)

	_, err = FromNative(map[string]any{"f": 1.5})
	assert.Error(t, err)
}

func TestObjectCloneIsDeep(t *testing.T) {
	orig := Object{"weights": Object{"a": Int(1)}}
	clone := orig.Clone()
	clone["weights"].(Object)["a"] = Int(99)

	n, _ := orig["weights"].(Object).Int("a")
	assert.Equal(t, int64(1), n)
}

func TestObjectNative(t *testing.T) {
	obj := Object{"w": Object{"a": Int(1)}, "s": String("x"), "z": Null{}}
	assert.Equal(t, map[string]any{
		"w": map[string]any{"a": int64(1)},
		"s": "x",
		"z": nil,
	}, obj.Native())
}
