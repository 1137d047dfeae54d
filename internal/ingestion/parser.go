package ingestion

import (
	"SparkLedger/internal/command"
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// ErrInvalidPayload marks messages that can never be applied. They are
// terminated rather than redelivered.
var ErrInvalidPayload = errors.New("invalid command payload")

// Parser validates inbound JSON against the embedded per-kind schema and
// decodes it into a typed command.
type Parser struct {
	schemas map[command.Kind]*jsonschema.Schema
}

// NewParser compiles the schema for every kind accepted over NATS.
func NewParser() (*Parser, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	p := &Parser{schemas: make(map[command.Kind]*jsonschema.Schema)}
	for _, kind := range IngestKinds {
		name := schemaFile(kind)
		raw, err := schemaFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		url := "mem://" + name
		if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		p.schemas[kind] = schema
	}
	return p, nil
}

// Parse validates data and decodes it as a command of kind.
func (p *Parser) Parse(kind command.Kind, data []byte) (command.Command, error) {
	schema, ok := p.schemas[kind]
	if !ok {
		return nil, fmt.Errorf("%w: kind %q is not accepted here", ErrInvalidPayload, kind)
	}

	doc, err := unmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	cmd, err := command.Decode(kind, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return cmd, nil
}

// unmarshalJSON decodes a single JSON document the way jsonschema/v5 expects
// for Validate (numbers kept as json.Number, trailing data rejected).
func unmarshalJSON(r io.Reader) (interface{}, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()
	var doc interface{}
	if err := decoder.Decode(&doc); err != nil {
		return nil, err
	}
	if t, _ := decoder.Token(); t != nil {
		return nil, fmt.Errorf("invalid character %v after top-level value", t)
	}
	return doc, nil
}

func schemaFile(kind command.Kind) string {
	return "schemas/" + string(kind) + ".schema.json"
}
