package jsonx

import json "github.com/goccy/go-json"

// ToDynamicJSON converts a Go value that serializes to a JSON object into a map,
// the shape provider SDKs expect for free-form schema and parameter fields.
func ToDynamicJSON(val any) (map[string]any, error) {
	b, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	result := make(map[string]any)
	if err := json.Unmarshal(b, &result); err != nil {
		return nil, err
	}
	return result, nil
}
