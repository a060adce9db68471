package codec

import (
	"encoding/json"
)

// JSON encodes values with encoding/json. Its bytes are interchangeable with
// GoJSON, so a cache written with either can be read with the other.
//
// Time values round-trip through RFC 3339; funcs, channels and complex
// numbers are not supported.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns "json".
func (JSON) Name() string { return "json" }

// Default is the codec New uses when no WithCodec option is given.
var Default Codec = GoJSON{}
