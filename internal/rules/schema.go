package rules

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Schema describes the rule pack format.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(&RulePack{})
	schema.Title = "Baator Rule Pack"
	schema.Description = "Data-defined rules: guards, cost, roll against DC and the effects fired on success or failure."
	return schema
}

// SchemaJSON renders Schema as indented JSON.
func SchemaJSON() ([]byte, error) {
	return json.MarshalIndent(Schema(), "", "  ")
}
