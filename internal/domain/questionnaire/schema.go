package questionnaire

import (
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

var ErrInvalidDocument = errors.New("document does not match the questionnaire state schema")

func counterSchema() *jsonschema.Schema {
	zero := 0.0
	return &jsonschema.Schema{Type: "integer", Minimum: &zero}
}

// documentSchema describes the camelCase JSON form of State. Every field is
// required; answers hold strings or lists of strings.
var documentSchema = &jsonschema.Schema{
	Type: "object",
	Required: []string{
		"answers",
		"currentQuestionIndex",
		"currentModuleIndex",
		"points",
		"streak",
		"combo",
		"shownMilestones",
		"completed",
	},
	Properties: map[string]*jsonschema.Schema{
		"answers": {
			Type: "object",
			AdditionalProperties: &jsonschema.Schema{
				AnyOf: []*jsonschema.Schema{
					{Type: "string"},
					{Type: "array", Items: &jsonschema.Schema{Type: "string"}},
				},
			},
		},
		"currentQuestionIndex": counterSchema(),
		"currentModuleIndex":   counterSchema(),
		"points":               counterSchema(),
		"streak":               counterSchema(),
		"combo":                counterSchema(),
		"shownMilestones": {
			Type:  "array",
			Items: &jsonschema.Schema{Type: "integer"},
		},
		"completed": {Type: "boolean"},
	},
}

var resolvedDocument = mustResolve(documentSchema)

func mustResolve(s *jsonschema.Schema) *jsonschema.Resolved {
	r, err := s.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		panic(fmt.Sprintf("questionnaire: resolve state schema: %v", err))
	}
	return r
}

// ValidateDocument checks a generically decoded JSON value (map[string]any,
// []any, float64, ...) against the State schema.
func ValidateDocument(doc any) error {
	if doc == nil {
		return fmt.Errorf("%w: null document", ErrInvalidDocument)
	}
	if err := resolvedDocument.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return nil
}
