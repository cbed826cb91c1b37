package config

import (
	"encoding/json"
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"
)

// LoadFile reads a JSON or YAML file containing a single object whose properties are variable
// names. Scalar values are converted to their string form, so `PORT: 8080` defines "8080".
func LoadFile(path string) (Variables, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", path, err)
	}
	vars, err := ParseVariables(data)
	if err != nil {
		return nil, fmt.Errorf("error parsing %q: %w", path, err)
	}
	return vars, nil
}

// ParseVariables parses variable definitions from JSON or YAML.
func ParseVariables(data []byte) (Variables, error) {
	var raw map[string]interface{}
	if err := ParseJSONOrYAML(data, &raw); err != nil {
		return nil, err
	}
	ret := make(Variables, len(raw))
	for name, value := range raw {
		switch v := value.(type) {
		case string:
			ret[name] = v
		case nil:
			ret[name] = ""
		case bool, float64:
			ret[name] = fmt.Sprint(v)
		default:
			return nil, fmt.Errorf("variable %q must have a scalar value, got %T", name, value)
		}
	}
	return ret, nil
}

// ParseJSONOrYAML is used in the same way as json.Unmarshal, but if the data is YAML and not
// JSON, it will convert the YAML to JSON and then parse it as JSON.
func ParseJSONOrYAML(data []byte, target interface{}) error {
	if err := json.Unmarshal(data, target); err == nil {
		return nil
	}
	var rawStructure interface{}
	if err := yaml.Unmarshal(data, &rawStructure); err != nil {
		return err
	}
	normalized, err := normalizeParsedYAMLForJSON(rawStructure)
	if err != nil {
		return err
	}
	jsonData, err := json.Marshal(normalized)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, target)
}

func normalizeParsedYAMLForJSON(data interface{}) (interface{}, error) {
	switch data := data.(type) {
	case []interface{}:
		arrayOut := make([]interface{}, 0, len(data))
		for _, v := range data {
			v1, err := normalizeParsedYAMLForJSON(v)
			if err != nil {
				return nil, err
			}
			arrayOut = append(arrayOut, v1)
		}
		return arrayOut, nil
	case map[string]interface{}:
		mapOut := make(map[string]interface{}, len(data))
		for k, v := range data {
			v1, err := normalizeParsedYAMLForJSON(v)
			if err != nil {
				return nil, err
			}
			mapOut[k] = v1
		}
		return mapOut, nil
	case map[interface{}]interface{}:
		mapOut := make(map[string]interface{}, len(data))
		for k, v := range data {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("YAML data contained a map key of type %T; only string keys are allowed", k)
			}
			v1, err := normalizeParsedYAMLForJSON(v)
			if err != nil {
				return nil, err
			}
			mapOut[key] = v1
		}
		return mapOut, nil
	default:
		return data, nil
	}
}
