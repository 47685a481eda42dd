package protocol

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// ErrInvalid wraps every inbound message that fails schema validation.
var ErrInvalid = errors.New("protocol: schema violation")

var schemaFiles = map[string]string{
	TypeHello: "hello.schema.json",
	TypeAct:   "act.schema.json",
}

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func compileSchemas() {
	schemas = map[string]*jsonschema.Schema{}
	for typ, name := range schemaFiles {
		text, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			schemasErr = err
			return
		}
		s, err := jsonschema.CompileString(name, string(text))
		if err != nil {
			schemasErr = fmt.Errorf("compile %s: %w", name, err)
			return
		}
		schemas[typ] = s
	}
}

// Validate checks an inbound client message against the schema for its type.
// Types without a schema pass.
func Validate(msgType string, raw []byte) error {
	schemasOnce.Do(compileSchemas)
	if schemasErr != nil {
		return schemasErr
	}
	s, ok := schemas[msgType]
	if !ok {
		return nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, msgType, err)
	}
	return nil
}
