package codec

import gojson "github.com/goccy/go-json"

// GoJSON encodes values with github.com/goccy/go-json. It is the Default
// codec since cached answers are encoded on every Set and decoded on every
// warm or cold hit.
type GoJSON struct{}

// Marshal encodes the value to JSON.
func (GoJSON) Marshal(v any) ([]byte, error) { return gojson.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (GoJSON) Unmarshal(data []byte, v any) error { return gojson.Unmarshal(data, v) }

// Name returns "go-json".
func (GoJSON) Name() string { return "go-json" }
