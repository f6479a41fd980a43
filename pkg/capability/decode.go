package capability

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Decode validates raw call arguments against the schema of the named
// capability and returns its typed record with defaults applied.
func Decode(name string, raw map[string]any) (Args, error) {
	kind, ok := Parse(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCapability, name)
	}

	compiled, err := loadSchemas()
	if err != nil {
		return nil, err
	}

	if raw == nil {
		raw = map[string]any{}
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, argumentError(kind, err, "arguments are not JSON encodable: %v", err)
	}

	result, err := compiled[kind].validator.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, argumentError(kind, err, "schema validation failed: %v", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, argumentError(kind, nil, "invalid arguments for %s: %s", kind, strings.Join(msgs, "; "))
	}

	args, err := catalog[index[kind]].decode(data)
	if err != nil {
		if _, ok := err.(*ArgumentError); ok {
			return nil, err
		}
		return nil, argumentError(kind, err, "invalid arguments for %s: %v", kind, err)
	}
	return args, nil
}
