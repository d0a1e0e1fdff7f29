package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

const stageSchema = `{
	"type": "object",
	"required": ["stage"],
	"properties": {"stage": {"type": "string", "enum": ["draft", "live"]}},
	"additionalProperties": false
}`

func TestSchemaValidator(t *testing.T) {
	v := NewSchemaValidator()

	require.NoError(t, v.Validate("memory://test/stage", []byte(stageSchema), []byte(`{"stage":"draft"}`)))
	require.ErrorContains(t, v.Validate("memory://test/stage", []byte(stageSchema), []byte(`{"stage":"gone"}`)), "schema validation")
	require.ErrorContains(t, v.Validate("memory://test/stage", []byte(stageSchema), []byte(`{`)), "decode payload")
	require.ErrorContains(t, v.Validate("memory://test/stage", []byte(stageSchema), nil), "payload is required")

	_, err := v.compile("memory://test/broken", []byte(`{"type":`))
	require.Error(t, err)
}

func TestColumnValidateJSON(t *testing.T) {
	e := MustDeclareEntity("project", EntityOptions{},
		DeclareColumn(PrimaryKey, TypeUUID, ColumnOptions{Primary: true}),
		DeclareColumn("metadata", TypeJSON, ColumnOptions{Nullable: true, JSONSchema: []byte(stageSchema)}),
		DeclareColumn("free", TypeJSON, ColumnOptions{Nullable: true}),
	)

	metadata, _ := e.Column("metadata")
	require.NoError(t, metadata.ValidateJSON(json.RawMessage(`{"stage":"live"}`)))
	require.NoError(t, metadata.ValidateJSON(nil))
	require.Error(t, metadata.ValidateJSON(json.RawMessage(`{"stage":"live","x":1}`)))

	free, _ := e.Column("free")
	require.NoError(t, free.ValidateJSON(json.RawMessage(`[1,2,3]`)))

	adhoc := DeclareColumn("adhoc", TypeJSON, ColumnOptions{JSONSchema: []byte(stageSchema)})
	require.Error(t, adhoc.ValidateJSON(json.RawMessage(`{}`)))
}

func TestCanonicalJSON(t *testing.T) {
	a, err := jsonHash([]byte(`{"b":1,"a":2}`))
	require.NoError(t, err)
	b, err := jsonHash([]byte(`{ "a": 2, "b": 1.0 }`))
	require.NoError(t, err)
	require.Equal(t, a, b)

	_, err = canonicalJSON(nil)
	require.Error(t, err)
}
