// Package schema generates a JSON Schema document for the map manifest
// format vectormap.Load consumes, so map authors and editing tools can
// validate a maps/<name>.json file before the planner or localizer ever
// touches it.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/iancoleman/orderedmap"
	"github.com/invopop/jsonschema"
)

// pointDocument mirrors vectormap's internal pointManifest but carries the
// jsonschema struct tags a reflected schema needs; vectormap keeps its
// on-disk types unexported, so the schema package restates their shape
// here rather than reaching into it.
type pointDocument struct {
	X float64 `json:"x" jsonschema:"title=x,description=x coordinate in map units,required"`
	Y float64 `json:"y" jsonschema:"title=y,description=y coordinate in map units,required"`
}

// segmentDocument mirrors vectormap's segmentManifest.
type segmentDocument struct {
	P0 pointDocument `json:"p0" jsonschema:"title=p0,description=segment start point,required"`
	P1 pointDocument `json:"p1" jsonschema:"title=p1,description=segment end point,required"`
}

// manifestDocument mirrors vectormap.MapManifest.
type manifestDocument struct {
	Segments []segmentDocument `json:"segments" jsonschema:"title=segments,description=ordered wall segments,required"`
}

// Build reflects manifestDocument into a JSON Schema describing the map
// manifest format.
func Build() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(manifestDocument))
	schema.Title = "Social Navigation Map Manifest"
	schema.Description = "Validates maps/<name>.json wall-segment manifests loaded by vectormap.Load"
	return schema
}

// MarshalOrdered renders schema as indented JSON with map keys kept in
// insertion order, matching how the effect catalog schema is published so
// diffs against a checked-in schema file stay stable across regenerations.
func MarshalOrdered(schema *jsonschema.Schema) ([]byte, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("schema: marshal: %w", err)
	}
	ordered := orderedmap.New()
	if err := json.Unmarshal(raw, ordered); err != nil {
		return nil, fmt.Errorf("schema: reorder: %w", err)
	}
	out, err := json.MarshalIndent(ordered, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("schema: indent: %w", err)
	}
	return out, nil
}
