package model

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/rotisserie/eris"
)

// decodeObject splits a JSON object into known fields and pass-through
// attributes. Each key present in known is decoded into the pointer it maps to.
// Keys that are unknown, whose value does not fit the known field's type, or
// whose value decodes to the field's zero value (null, "") land in the returned
// map untouched so they re-encode as received.
func decodeObject(data []byte, known map[string]any) (map[string]any, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "model: decode object")
	}

	var extra map[string]any
	for key, value := range raw {
		if dst, ok := known[key]; ok && decodeInto(value, dst) && !isZero(dst) {
			continue
		}
		v, err := decodeValue(value)
		if err != nil {
			return nil, eris.Wrapf(err, "model: decode attribute %q", key)
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[key] = v
	}
	return extra, nil
}

// decodeInto decodes into a scratch value and only assigns dst on success, so
// a type mismatch never leaves a half-written field behind. Numbers inside
// untyped values stay json.Number.
func decodeInto(raw json.RawMessage, dst any) bool {
	target := reflect.ValueOf(dst).Elem()
	scratch := reflect.New(target.Type())
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(scratch.Interface()); err != nil {
		return false
	}
	target.Set(scratch.Elem())
	return true
}

func isZero(dst any) bool {
	return reflect.ValueOf(dst).Elem().IsZero()
}

// decodeValue keeps numbers as json.Number so they re-encode verbatim.
func decodeValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// encodeObject merges pass-through attributes with the known fields. Known
// fields win on key collision.
func encodeObject(known map[string]any, extra map[string]any) ([]byte, error) {
	out := make(map[string]any, len(known)+len(extra))
	for k, v := range extra {
		out[k] = v
	}
	for k, v := range known {
		out[k] = v
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, eris.Wrap(err, "model: encode object")
	}
	return b, nil
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
