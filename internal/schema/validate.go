// Package schema validates chat-completion output against a client-supplied
// response_format.json_schema using the JSON Schema draft validator the
// rest of the ecosystem already depends on.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validate compiles schemaDoc (a JSON Schema document) and checks that
// content, the model's raw completion text, parses as JSON conforming to
// it. Content that isn't even valid JSON fails validation rather than
// being silently skipped.
func Validate(schemaDoc json.RawMessage, content string) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("response.json", bytes.NewReader(schemaDoc)); err != nil {
		return fmt.Errorf("invalid response_format schema: %w", err)
	}
	compiled, err := compiler.Compile("response.json")
	if err != nil {
		return fmt.Errorf("compiling response_format schema: %w", err)
	}

	var value interface{}
	if err := json.Unmarshal([]byte(content), &value); err != nil {
		return fmt.Errorf("completion content is not valid JSON: %w", err)
	}

	if err := compiled.Validate(value); err != nil {
		return fmt.Errorf("completion content does not match response_format schema: %w", err)
	}
	return nil
}
