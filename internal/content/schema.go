// Package content holds the bundled practice content and validates
// question payloads before they reach the store.
package content

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	questionDataSchemaURL   = "https://mathyou.app/schemas/question-data.json"
	createQuestionSchemaURL = "https://mathyou.app/schemas/create-question.json"
)

var (
	compileOnce     sync.Once
	compileErr      error
	questionDataSch *jsonschema.Schema
	createQuestion  *jsonschema.Schema
)

func compileSchemas() error {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		for url, file := range map[string]string{
			questionDataSchemaURL:   "schemas/question-data.json",
			createQuestionSchemaURL: "schemas/create-question.json",
		} {
			raw, err := schemaFS.ReadFile(file)
			if err != nil {
				compileErr = err
				return
			}
			doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
			if err != nil {
				compileErr = fmt.Errorf("parse %s: %w", file, err)
				return
			}
			if err := c.AddResource(url, doc); err != nil {
				compileErr = fmt.Errorf("add %s: %w", file, err)
				return
			}
		}
		if questionDataSch, compileErr = c.Compile(questionDataSchemaURL); compileErr != nil {
			return
		}
		createQuestion, compileErr = c.Compile(createQuestionSchemaURL)
	})
	return compileErr
}

func validate(sch **jsonschema.Schema, raw []byte) error {
	if err := compileSchemas(); err != nil {
		return fmt.Errorf("compile schemas: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return (*sch).Validate(doc)
}

// ValidateQuestionData checks a question's data payload.
func ValidateQuestionData(raw json.RawMessage) error {
	return validate(&questionDataSch, raw)
}

// ValidateCreateRequest checks a create-question request body.
func ValidateCreateRequest(raw []byte) error {
	return validate(&createQuestion, raw)
}

// CreateQuestionDoc describes the create-question endpoint, including its JSON schema.
func CreateQuestionDoc() (map[string]any, error) {
	var schema map[string]any
	raw, err := schemaFS.ReadFile("schemas/create-question.json")
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, err
	}
	var data map[string]any
	raw, err = schemaFS.ReadFile("schemas/question-data.json")
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return map[string]any{
		"endpoint":       "/api/question/create",
		"method":         "POST",
		"description":    "Creates a new practice question in the database.",
		"authentication": "Session cookie OR 'X-API-Key' header matching the configured admin API key.",
		"defaults": map[string]any{
			"difficulty": "Medium",
			"legacy_id":  "<concept_slug>_<8 hex characters>",
		},
		"payload_schema": schema,
		"data_schema":    data,
	}, nil
}
