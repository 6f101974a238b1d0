package backend

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Response schemas are structural only. Field values that are merely
// malformed (a non-numeric difficulty, say) are coerced by the decoders.
const (
	profileSchema = `{
		"type": "object",
		"properties": {
			"userAssignments": {
				"type": ["object", "null"],
				"additionalProperties": {
					"type": "object",
					"additionalProperties": {
						"type": ["array", "null"],
						"items": {
							"type": "object",
							"required": ["task_key"],
							"properties": {
								"task_key": {"type": "string"},
								"tags": {"type": ["array", "null"], "items": {"type": "string"}}
							}
						}
					}
				}
			},
			"xpData": {
				"type": ["array", "null"],
				"items": {
					"type": "object",
					"required": ["question_id"],
					"properties": {
						"question_id": {"type": "string"},
						"content_id": {"type": "string"},
						"curriculum_id": {"type": "string"},
						"dXP": {"type": "number"},
						"timestamp": {"type": "string"}
					}
				}
			},
			"xpLastFetchedDatetime": {"type": ["string", "null"]},
			"xpUsername": {"type": ["string", "null"]}
		}
	}`

	tasksSchema = `{"type": "array", "items": {"type": "string"}}`

	questionSchema = `{
		"type": "object",
		"required": ["Question"],
		"properties": {
			"Question": {"type": "string"},
			"Answer": {"type": ["string", "null"]},
			"Tags": {"type": ["array", "null"], "items": {"type": "string"}}
		}
	}`
)

type validator struct {
	profile  *gojsonschema.Schema
	tasks    *gojsonschema.Schema
	question *gojsonschema.Schema
}

func newValidator() (*validator, error) {
	compile := func(name, src string) (*gojsonschema.Schema, error) {
		s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", name, err)
		}
		return s, nil
	}

	var v validator
	var err error
	if v.profile, err = compile("profile", profileSchema); err != nil {
		return nil, err
	}
	if v.tasks, err = compile("tasks", tasksSchema); err != nil {
		return nil, err
	}
	if v.question, err = compile("question", questionSchema); err != nil {
		return nil, err
	}
	return &v, nil
}

// check validates body against schema, wrapping failures in ErrInvalidPayload.
func check(schema *gojsonschema.Schema, what string, body []byte) error {
	res, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, what, err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s: %s", ErrInvalidPayload, what, strings.Join(msgs, "; "))
}
