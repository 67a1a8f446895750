package sdk

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// The service answers with loosely shaped JSON. Bodies are parsed as untyped values, checked
// against these schemas, and only then decoded into typed results.
const (
	errorBodySchema = `{
  "type": "object",
  "properties": {
    "error":   {"type": "string"},
    "message": {"type": "string"}
  }
}`

	authResultSchema = `{
  "type": "object",
  "required": ["success"],
  "properties": {
    "success":  {"type": "boolean"},
    "username": {"type": "string"},
    "error":    {"type": "string"},
    "message":  {"type": "string"}
  }
}`

	authStatusSchema = `{
  "type": "object",
  "required": ["authenticated"],
  "properties": {
    "authenticated": {"type": "boolean"},
    "username":      {"type": ["string", "null"]}
  }
}`
)

var (
	schemasOnce sync.Once
	schemasErr  error
	schemas     map[string]*jsonschema.Schema
)

func compiledSchema(name string) (*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		sources := map[string]string{
			"error-body.json":  errorBodySchema,
			"auth-result.json": authResultSchema,
			"auth-status.json": authStatusSchema,
		}
		compiler := jsonschema.NewCompiler()
		compiler.DefaultDraft(jsonschema.Draft7)
		for url, src := range sources {
			doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
			if err != nil {
				schemasErr = fmt.Errorf("parse schema %s: %w", url, err)
				return
			}
			if err := compiler.AddResource(url, doc); err != nil {
				schemasErr = fmt.Errorf("add schema %s: %w", url, err)
				return
			}
		}
		compiled := make(map[string]*jsonschema.Schema, len(sources))
		for url := range sources {
			s, err := compiler.Compile(url)
			if err != nil {
				schemasErr = fmt.Errorf("compile schema %s: %w", url, err)
				return
			}
			compiled[url] = s
		}
		schemas = compiled
	})
	if schemasErr != nil {
		return nil, schemasErr
	}
	return schemas[name], nil
}

// decodeValidated parses body, validates it against the named schema and decodes it into out
// using the json field tags.
func decodeValidated(body []byte, schemaName string, out any) error {
	schema, err := compiledSchema(schemaName)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("empty response body")
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("malformed JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("unexpected response shape: %w", err)
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  out,
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := decoder.Decode(doc); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// errorMessage extracts a displayable message from a non-2xx body, falling back to
// DefaultErrorMessage when the body is absent, unparseable or carries no message.
func errorMessage(body []byte) string {
	var eb errorBody
	if err := decodeValidated(body, "error-body.json", &eb); err != nil {
		return DefaultErrorMessage
	}
	if msg := strings.TrimSpace(eb.Error); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(eb.Message); msg != "" {
		return msg
	}
	return DefaultErrorMessage
}
