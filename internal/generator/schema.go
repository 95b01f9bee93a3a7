package generator

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const multipleChoiceDefs = `
	"definitions": {
		"options": {
			"type": "array",
			"minItems": 4,
			"maxItems": 4,
			"items": {"type": "string", "minLength": 1}
		},
		"correct_index": {"type": "integer", "minimum": 0, "maximum": 3}
	}`

var quizSchema = mustSchema(`{
	"type": "object",
	"required": ["questions"],
	"properties": {
		"questions": {
			"type": "array",
			"minItems": 5,
			"maxItems": 5,
			"items": {
				"type": "object",
				"required": ["question", "options", "correct_index"],
				"properties": {
					"question": {"type": "string", "minLength": 1},
					"options": {"$ref": "#/definitions/options"},
					"correct_index": {"$ref": "#/definitions/correct_index"},
					"weak_topic": {"type": ["string", "null"]}
				}
			}
		}
	},` + multipleChoiceDefs + `
}`)

var gradeSchema = mustSchema(`{
	"type": "object",
	"required": ["score", "feedback"],
	"properties": {
		"score": {"type": "integer", "minimum": 0, "maximum": 5},
		"feedback": {"type": "string"},
		"weak_topics": {
			"type": ["array", "null"],
			"items": {"type": "string"}
		},
		"per_question": {
			"type": ["array", "null"],
			"items": {
				"type": "object",
				"required": ["index", "is_correct"],
				"properties": {
					"index": {"type": "integer", "minimum": 0, "maximum": 4},
					"is_correct": {"type": "boolean"},
					"weak_topic": {"type": ["string", "null"]},
					"comment": {"type": ["string", "null"]}
				}
			}
		}
	}
}`)

// Module fields are nullable so missing content can be defaulted downstream,
// but any exit question that is present must be well formed.
var syllabusSchema = mustSchema(`{
	"type": "object",
	"required": ["modules"],
	"properties": {
		"level": {"type": ["string", "null"]},
		"modules": {
			"type": "array",
			"minItems": 6,
			"maxItems": 6,
			"items": {
				"type": "object",
				"properties": {
					"title": {"type": ["string", "null"]},
					"description": {"type": ["string", "null"]},
					"topics": {
						"type": ["array", "null"],
						"items": {"type": "string"}
					},
					"layout": {"type": ["string", "null"]},
					"exit_quiz": {
						"type": ["array", "null"],
						"items": {
							"type": "object",
							"required": ["question", "options", "correct_index"],
							"properties": {
								"question": {"type": "string", "minLength": 1},
								"options": {"$ref": "#/definitions/options"},
								"correct_index": {"$ref": "#/definitions/correct_index"},
								"review_topic": {"type": ["string", "null"]},
								"explanation": {"type": ["string", "null"]}
							}
						}
					}
				}
			}
		}
	},` + multipleChoiceDefs + `
}`)

var lessonSchema = mustSchema(`{
	"type": "object",
	"required": ["title", "sections"],
	"properties": {
		"title": {"type": "string", "minLength": 1},
		"sections": {
			"type": "array",
			"minItems": 1,
			"items": {"type": "object"}
		}
	}
}`)

func mustSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("compile schema: %v", err))
	}
	return schema
}

// validate checks doc against schema and returns a single error listing every
// violation.
func validate(schema *gojsonschema.Schema, doc []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("response is not valid JSON: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.New("response does not match schema: " + strings.Join(msgs, "; "))
}

// extractJSON strips markdown code fences and any prose around the outermost
// JSON object.
func extractJSON(content string) []byte {
	raw := []byte(strings.TrimSpace(content))
	if bytes.HasPrefix(raw, []byte("```")) {
		raw = raw[3:]
		if nl := bytes.IndexByte(raw, '\n'); nl >= 0 {
			raw = raw[nl+1:]
		}
		raw = bytes.TrimSuffix(bytes.TrimSpace(raw), []byte("```"))
	}
	start := bytes.IndexByte(raw, '{')
	end := bytes.LastIndexByte(raw, '}')
	if start >= 0 && end > start {
		raw = raw[start : end+1]
	}
	return bytes.TrimSpace(raw)
}
