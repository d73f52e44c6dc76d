package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// SearchEnvelopeSchema describes a catalog search response. Results are only
// required to carry an identifier; everything else is optional upstream.
var SearchEnvelopeSchema = `{
	"type": "object",
	"properties": {
		"Response": {"type": "string", "enum": ["True", "False"]},
		"Error": {"type": "string"},
		"totalResults": {"type": "string"},
		"Search": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"imdbID": {"type": "string", "minLength": 1},
					"Title": {"type": "string"},
					"Year": {"type": "string"},
					"Poster": {"type": "string"},
					"Type": {"type": "string"}
				},
				"required": ["imdbID"]
			}
		}
	},
	"required": ["Response"]
}`

// DetailEnvelopeSchema describes a single-title catalog lookup response.
var DetailEnvelopeSchema = `{
	"type": "object",
	"properties": {
		"Response": {"type": "string", "enum": ["True", "False"]},
		"Error": {"type": "string"},
		"imdbID": {"type": "string"},
		"Title": {"type": "string"},
		"Genre": {"type": "string"},
		"Actors": {"type": "string"},
		"Director": {"type": "string"}
	},
	"required": ["Response"]
}`

var (
	searchSchema = mustSchema(SearchEnvelopeSchema)
	detailSchema = mustSchema(DetailEnvelopeSchema)
)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("invalid catalog schema: %v", err))
	}
	return schema
}

// ValidateSearchEnvelope validates a raw catalog search response body.
func ValidateSearchEnvelope(data []byte) error {
	return validateAgainst(searchSchema, data)
}

// ValidateDetailEnvelope validates a raw catalog lookup response body.
func ValidateDetailEnvelope(data []byte) error {
	return validateAgainst(detailSchema, data)
}

func validateAgainst(schema *gojsonschema.Schema, data []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("failed to validate JSON schema: %w", err)
	}

	if !result.Valid() {
		var errorMessages []string
		for _, desc := range result.Errors() {
			errorMessages = append(errorMessages, desc.String())
		}
		return fmt.Errorf("JSON validation failed: %s", strings.Join(errorMessages, "; "))
	}

	return nil
}
