package llm

import (
	"encoding/json"
	"reflect"
	"sync"

	"github.com/invopop/jsonschema"
)

var schemaCache sync.Map // reflect.Type -> string

// SchemaFor renders the JSON schema of v's type with every definition inlined.
func SchemaFor(v any) string {
	t := reflect.TypeOf(v)
	if cached, ok := schemaCache.Load(t); ok {
		return cached.(string)
	}

	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := r.Reflect(v)
	schema.Version = ""

	b, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "{}"
	}
	s := string(b)
	schemaCache.Store(t, s)
	return s
}
