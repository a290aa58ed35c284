package service

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Decode normalises the backend's resource wrappings into T. Accepted shapes,
// tried in order: {"data":{"data":X}} (paginated collection), {"data":X}
// (resource), and a bare X. A null payload or one that does not decode into T
// is a *DecodeError.
func Decode[T any](body []byte) (T, error) {
	var zero T

	raw, err := unwrap(body)
	if err != nil {
		return zero, &DecodeError{Err: err}
	}
	if bytes.Equal(raw, []byte("null")) {
		return zero, &DecodeError{Err: errors.New("payload is null")}
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, &DecodeError{Err: err}
	}
	return out, nil
}

func unwrap(body []byte) (json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}
	if !json.Valid(body) {
		return nil, errors.New("body is not JSON")
	}

	inner, ok := dataField(body)
	if !ok {
		return body, nil
	}
	if nested, ok := dataField(inner); ok {
		return nested, nil
	}
	return inner, nil
}

// dataField returns the "data" member of a JSON object.
func dataField(raw json.RawMessage) (json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	v, ok := obj["data"]
	return v, ok
}
