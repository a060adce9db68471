package codec

import (
	"errors"
	"fmt"
)

// ErrUnsupportedType is returned by Raw for values that are not bytes or strings.
var ErrUnsupportedType = errors.New("codec: unsupported type")

// Raw stores []byte and string values unchanged.
type Raw struct{}

// Marshal returns the bytes of a []byte, string or a pointer to either.
func (Raw) Marshal(v any) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		return t, nil
	case *[]byte:
		return *t, nil
	case string:
		return []byte(t), nil
	case *string:
		return []byte(*t), nil
	default:
		return nil, fmt.Errorf("%w: raw cannot marshal %T", ErrUnsupportedType, v)
	}
}

// Unmarshal copies data into a *[]byte or *string.
func (Raw) Unmarshal(data []byte, v any) error {
	switch t := v.(type) {
	case *[]byte:
		*t = append([]byte(nil), data...)
	case *string:
		*t = string(data)
	default:
		return fmt.Errorf("%w: raw cannot unmarshal into %T", ErrUnsupportedType, v)
	}
	return nil
}

// Name returns the unique name of the codec ("raw").
func (Raw) Name() string { return "raw" }
