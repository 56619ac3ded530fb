package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// configSchema is the JSON Schema every config file is checked against
// before unmarshalling, so typos fail loudly instead of being silently
// dropped.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "defaultEnvironment": {"type": "string"},
    "timeout": {"type": "integer", "minimum": 0},
    "retries": {"type": "integer", "minimum": 0},
    "retryDelay": {"type": "integer", "minimum": 0},
    "followRedirects": {"type": "boolean"},
    "maxRedirects": {"type": "integer", "minimum": 0},
    "validateSSL": {"type": "boolean"},
    "proxy": {"type": "string"},
    "headers": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "rate": {"type": "number", "minimum": 0},
    "bail": {"type": "boolean"},
    "verbose": {"type": "boolean"},
    "noColor": {"type": "boolean"},
    "historyPath": {"type": "string"},
    "hookTimeout": {"type": "integer", "minimum": 0},
    "permissions": {
      "type": "object",
      "additionalProperties": {
        "type": "array",
        "items": {
          "type": "string",
          "enum": ["secrets", "network", "filesystem", "env", "subprocess", "enterprise"]
        }
      }
    },
    "resolvers": {
      "type": "object",
      "propertyNames": {"pattern": "^\\$"},
      "additionalProperties": {
        "type": "object",
        "additionalProperties": false,
        "required": ["command"],
        "properties": {
          "command": {
            "type": "array",
            "minItems": 1,
            "items": {"type": "string"}
          },
          "timeoutMs": {"type": "integer", "minimum": 1}
        }
      }
    },
    "pluginConfig": {
      "type": "object",
      "additionalProperties": {"type": "object"}
    },
    "notify": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "on": {"type": "string", "enum": ["always", "failure", "success", "recovery"]},
        "slack": {"type": "string"},
        "slackChannel": {"type": "string"},
        "teams": {"type": "string"}
      }
    }
  }
}`

// Validate checks raw config JSON against the schema.
func Validate(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
}
