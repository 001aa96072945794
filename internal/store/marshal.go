package store

import (
	"fmt"

	"github.com/roach88/sovereign/internal/ir"
)

// marshalObject converts a payload to JSON TEXT for storage. Keys are
// written in RFC 8785 order so identical payloads store identical text.
func marshalObject(obj ir.Object) (string, error) {
	if obj == nil {
		return "{}", nil
	}
	data, err := obj.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

// unmarshalObject parses stored JSON TEXT back into a payload.
// Integers survive as ir.Int without float64 precision loss.
func unmarshalObject(data string) (ir.Object, error) {
	if data == "" {
		return ir.Object{}, nil
	}
	var obj ir.Object
	if err := obj.UnmarshalJSON([]byte(data)); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return obj, nil
}

// nullInt64 maps an optional timestamp onto a nullable column.
func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// nullInt maps an optional integer onto a nullable column.
func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}
