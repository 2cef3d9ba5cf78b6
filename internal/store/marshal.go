package store

import (
	"encoding/json"
	"fmt"

	"github.com/undolab/saferun/internal/record"
	"github.com/undolab/saferun/internal/state"
)

// marshalDeltas serializes a delta list to canonical JSON TEXT. The
// output is byte-stable for identical inputs, which makes snapshot
// rows fingerprintable and golden-testable.
func marshalDeltas(deltas []record.Delta) (string, error) {
	arr := make(state.Array, len(deltas))
	for i, d := range deltas {
		arr[i] = deltaToObject(d)
	}
	data, err := state.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal deltas: %w", err)
	}
	return string(data), nil
}

func deltaToObject(d record.Delta) state.Object {
	obj := state.Object{
		"type":   state.String(d.Type),
		"target": state.String(d.Target),
		"status": state.String(d.Status),
		"hash":   state.String(d.Hash),
	}
	if d.Key != "" {
		obj["key"] = state.String(d.Key)
	}
	if state.IsNull(d.Before) {
		obj["before"] = state.Null{}
	} else {
		obj["before"] = d.Before
	}
	if state.IsNull(d.After) {
		obj["after"] = state.Null{}
	} else {
		obj["after"] = d.After
	}
	return obj
}

// unmarshalDeltas parses a canonical JSON delta list back into
// records.
func unmarshalDeltas(text string) ([]record.Delta, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal deltas: %w", err)
	}

	deltas := make([]record.Delta, 0, len(raw))
	for i, msg := range raw {
		var obj state.Object
		if err := json.Unmarshal(msg, &obj); err != nil {
			return nil, fmt.Errorf("unmarshal delta[%d]: %w", i, err)
		}
		d := record.Delta{
			Type:   stringField(obj, "type"),
			Target: stringField(obj, "target"),
			Key:    stringField(obj, "key"),
			Status: record.DeltaStatus(stringField(obj, "status")),
			Hash:   stringField(obj, "hash"),
			Before: obj["before"],
			After:  obj["after"],
		}
		deltas = append(deltas, d)
	}
	return deltas, nil
}

// marshalInstructions serializes rollback instructions to canonical
// JSON TEXT, preserving order.
func marshalInstructions(instructions []record.Instruction) (string, error) {
	arr := make(state.Array, len(instructions))
	for i, inst := range instructions {
		obj := state.Object{
			"op":     state.String(inst.Op),
			"target": state.String(inst.Target),
		}
		if inst.Key != "" {
			obj["key"] = state.String(inst.Key)
		}
		if state.IsNull(inst.State) {
			obj["state"] = state.Null{}
		} else {
			obj["state"] = inst.State
		}
		arr[i] = obj
	}
	data, err := state.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal instructions: %w", err)
	}
	return string(data), nil
}

// unmarshalInstructions parses a canonical JSON instruction list.
func unmarshalInstructions(text string) ([]record.Instruction, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal instructions: %w", err)
	}

	instructions := make([]record.Instruction, 0, len(raw))
	for i, msg := range raw {
		var obj state.Object
		if err := json.Unmarshal(msg, &obj); err != nil {
			return nil, fmt.Errorf("unmarshal instruction[%d]: %w", i, err)
		}
		instructions = append(instructions, record.Instruction{
			Op:     stringField(obj, "op"),
			Target: stringField(obj, "target"),
			Key:    stringField(obj, "key"),
			State:  obj["state"],
		})
	}
	return instructions, nil
}

// marshalResult serializes a handler result payload. An empty object
// serializes to "" so the column stays compact.
func marshalResult(result state.Object) (string, error) {
	if len(result) == 0 {
		return "", nil
	}
	data, err := state.MarshalCanonical(result)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(data), nil
}

// unmarshalResult parses a result payload; "" yields nil.
func unmarshalResult(text string) (state.Object, error) {
	if text == "" {
		return nil, nil
	}
	var obj state.Object
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return obj, nil
}

// marshalStepData serializes a step's data payload; nil yields "".
func marshalStepData(data state.Object) (string, error) {
	return marshalResult(data)
}

func stringField(obj state.Object, key string) string {
	if s, ok := obj[key].(state.String); ok {
		return string(s)
	}
	return ""
}
