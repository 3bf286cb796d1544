package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// responseSchemas are the JSON Schemas of the item shapes each prompt asks for,
// rendered once so prompt construction never fails.
type responseSchemas struct {
	plan       string
	hypothesis string
	evaluation string
	creative   string
}

func newResponseSchemas() (*responseSchemas, error) {
	var (
		s   responseSchemas
		err error
	)
	if s.plan, err = schemaFor[Plan](); err != nil {
		return nil, fmt.Errorf("failed to build plan schema: %w", err)
	}
	if s.hypothesis, err = schemaFor[Hypothesis](); err != nil {
		return nil, fmt.Errorf("failed to build hypothesis schema: %w", err)
	}
	if s.evaluation, err = schemaFor[Evaluation](); err != nil {
		return nil, fmt.Errorf("failed to build evaluation schema: %w", err)
	}
	if s.creative, err = schemaFor[Creative](); err != nil {
		return nil, fmt.Errorf("failed to build creative schema: %w", err)
	}
	return &s, nil
}

func schemaFor[T any]() (string, error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return "", err
	}
	b, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
