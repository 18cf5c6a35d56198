package validation

const descriptorSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "description": {"type": "string", "maxLength": 1000},
    "apiEndpoint": {"type": "string", "maxLength": 2048},
    "skills": {
      "type": "array",
      "maxItems": 50,
      "items": {"type": "string", "minLength": 1, "maxLength": 100}
    },
    "protocols": {
      "type": "array",
      "minItems": 1,
      "items": {"enum": ["REST", "GraphQL", "A2A", "WebSocket", "gRPC"]}
    },
    "a2aCompliant": {"type": "boolean"},
    "supportedTasks": {
      "type": "array",
      "maxItems": 20,
      "items": {"type": "string", "minLength": 1, "maxLength": 100}
    },
    "negotiationCapable": {"type": "boolean"},
    "contextRequired": {
      "type": "array",
      "maxItems": 10,
      "items": {"type": "string", "minLength": 1, "maxLength": 100}
    },
    "tokenBudget": {"type": "integer", "minimum": 0}
  },
  "required": ["protocols"],
  "if": {
    "properties": {"a2aCompliant": {"const": true}},
    "required": ["a2aCompliant"]
  },
  "then": {
    "properties": {"supportedTasks": {"minItems": 1}},
    "required": ["supportedTasks"]
  }
}`

const negotiationSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "initiatingAgentName": {"type": "string", "minLength": 1},
    "requestedTask": {"type": "string", "minLength": 1, "maxLength": 100},
    "context": {
      "type": ["object", "null"],
      "additionalProperties": {"type": "string"}
    },
    "preferredCapabilities": {
      "type": "object",
      "properties": {
        "tokenBudget": {"type": "integer", "minimum": 0},
        "skills": {
          "type": "array",
          "maxItems": 50,
          "items": {"type": "string", "minLength": 1, "maxLength": 100}
        }
      }
    }
  },
  "required": ["initiatingAgentName", "requestedTask"]
}`
