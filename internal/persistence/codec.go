package persistence

import "encoding/json"

// EncodeJSON serializes a value for column storage. Nil maps and empty
// slices encode as NULL so absent data round-trips as absent.
func EncodeJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// DecodeJSON deserializes column data into T. Empty data yields the zero
// value.
func DecodeJSON[T any](data []byte) (T, error) {
	var out T
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}
