package service

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/question_set.json
var questionSetSchemaSource string

var (
	questionSetSchemaOnce sync.Once
	questionSetSchema     *jsonschema.Schema
	questionSetSchemaErr  error
)

func compiledQuestionSetSchema() (*jsonschema.Schema, error) {
	questionSetSchemaOnce.Do(func() {
		questionSetSchema, questionSetSchemaErr = jsonschema.CompileString("question_set.json", questionSetSchemaSource)
	})
	return questionSetSchema, questionSetSchemaErr
}

// validateQuestionSet checks raw question JSON against the question set
// schema. Failures wrap ErrInvalidQuestionSet with the first violation.
func validateQuestionSet(raw []byte) error {
	schema, err := compiledQuestionSetSchema()
	if err != nil {
		return fmt.Errorf("compile question schema: %w", err)
	}

	var document interface{}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&document); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQuestionSet, err)
	}

	if err := schema.Validate(document); err != nil {
		var validationErr *jsonschema.ValidationError
		if errors.As(err, &validationErr) {
			return fmt.Errorf("%w: %s", ErrInvalidQuestionSet, firstViolation(validationErr))
		}
		return fmt.Errorf("%w: %v", ErrInvalidQuestionSet, err)
	}
	return nil
}

func firstViolation(err *jsonschema.ValidationError) string {
	leaf := err
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	location := leaf.InstanceLocation
	if location == "" {
		location = "/"
	}
	return fmt.Sprintf("%s: %s", location, leaf.Message)
}
