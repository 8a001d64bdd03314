package harness_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybertip/triage/pkg/harness"
)

const entitySchema = `{
	"type": "object",
	"required": ["usernames"],
	"properties": {
		"usernames": {"type": "array", "items": {"type": "string"}}
	}
}`

func TestSchemaValidator_ValidJSON_Passes(t *testing.T) {
	v, err := harness.CompileSchema("entities", entitySchema)
	require.NoError(t, err)
	assert.NoError(t, v.ValidateJSON(`{"usernames": ["alice"]}`))
}

func TestSchemaValidator_MissingRequiredField_Fails(t *testing.T) {
	v, err := harness.CompileSchema("entities", entitySchema)
	require.NoError(t, err)
	assert.Error(t, v.ValidateJSON(`{}`))
}

func TestExtractValidated_FencedBlock_ValidatesAndUnmarshals(t *testing.T) {
	v, err := harness.CompileSchema("entities2", entitySchema)
	require.NoError(t, err)

	raw := "```json\n{\"usernames\": [\"bob\"]}\n```"
	var out struct {
		Usernames []string `json:"usernames"`
	}
	require.NoError(t, harness.ExtractValidated(raw, v, &out))
	assert.Equal(t, []string{"bob"}, out.Usernames)
}
