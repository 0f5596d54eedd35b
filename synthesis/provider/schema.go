package provider

import (
	"encoding/json"
	"sort"

	"github.com/invopop/jsonschema"
)

func GenerateSchema[T any]() map[string]interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	schemaObj, err := schemaToMap(schema)
	if err != nil {
		panic(err)
	}
	ensureOpenAICompliance(schemaObj)
	return schemaObj
}

func schemaToMap(schema *jsonschema.Schema) (map[string]interface{}, error) {
	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

const (
	propertiesKey           = "properties"
	additionalPropertiesKey = "additionalProperties"
	typeKey                 = "type"
	requiredKey             = "required"
	itemsKey                = "items"
)

// ensureOpenAICompliance closes every struct object and marks all of its properties required.
// Map-valued objects keep their additionalProperties schema.
func ensureOpenAICompliance(schema map[string]interface{}) {
	if schemaType, ok := schema[typeKey].(string); ok && schemaType == "object" {
		if _, isMap := schema[additionalPropertiesKey].(map[string]interface{}); !isMap {
			schema[additionalPropertiesKey] = false
		}

		if properties, ok := schema[propertiesKey].(map[string]interface{}); ok {
			requiredFields := sortedNames(properties)
			if len(requiredFields) > 0 {
				schema[requiredKey] = requiredFields
			}
		}
	}

	if properties, ok := schema[propertiesKey].(map[string]interface{}); ok {
		for _, prop := range properties {
			if propMap, ok := prop.(map[string]interface{}); ok {
				ensureOpenAICompliance(propMap)
			}
		}
	}

	if items, ok := schema[itemsKey].(map[string]interface{}); ok {
		ensureOpenAICompliance(items)
	}

	if additionalProps, ok := schema[additionalPropertiesKey].(map[string]interface{}); ok {
		ensureOpenAICompliance(additionalProps)
	}
}

// StrictCompatible reports whether schema can be sent with strict structured output, which
// rejects free-form map objects.
func StrictCompatible(schema map[string]interface{}) bool {
	if _, isMap := schema[additionalPropertiesKey].(map[string]interface{}); isMap {
		return false
	}
	if properties, ok := schema[propertiesKey].(map[string]interface{}); ok {
		for _, prop := range properties {
			if propMap, ok := prop.(map[string]interface{}); ok && !StrictCompatible(propMap) {
				return false
			}
		}
	}
	if items, ok := schema[itemsKey].(map[string]interface{}); ok {
		return StrictCompatible(items)
	}
	return true
}

func sortedNames(m map[string]interface{}) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
