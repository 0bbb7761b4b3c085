package message

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/ledpush/errors"
)

// envelopeSchema is the JSON Schema every inbound frame body must satisfy.
// Unknown properties are allowed so the server can add fields.
const envelopeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["messageId", "timestamp", "messageType", "level", "payload"],
  "properties": {
    "messageId":   {"type": "string", "minLength": 1},
    "timestamp":   {"type": "string", "format": "date-time"},
    "messageType": {"enum": ["NOTIFICATION", "TERMINAL_STATUS_CHANGE", "COMMAND_FEEDBACK", "TASK_PROGRESS"]},
    "level":       {"enum": ["SUCCESS", "INFO", "WARNING", "ERROR"]},
    "priority":    {"enum": ["LOW", "NORMAL", "HIGH", "URGENT"]},
    "ttl": {
      "oneOf": [
        {"type": "number", "minimum": 0},
        {"type": "string", "format": "date-time"}
      ]
    },
    "requireAck": {"type": "boolean"},
    "payload": {},
    "actions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["label", "type"],
        "properties": {
          "label":  {"type": "string", "minLength": 1},
          "type":   {"enum": ["NAVIGATE", "API_CALL", "CONFIRM", "DISMISS"]},
          "target": {"type": "string"}
        }
      }
    }
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(envelopeSchema))
	if err != nil {
		panic(fmt.Sprintf("message: envelope schema does not compile: %v", err))
	}
	return schema
}

// Schema returns the envelope JSON Schema document.
func Schema() string {
	return envelopeSchema
}

// Decode parses and validates a frame body. Bodies that are not JSON fail with
// KindParseError; bodies that break the envelope contract fail with KindInvalidMessage.
func Decode(data []byte) (*UnifiedMessage, error) {
	const op = "message.Decode"

	if !json.Valid(data) {
		return nil, errors.New(errors.KindParseError, op,
			fmt.Errorf("%w: body is not valid JSON", errors.ErrParsingFailed))
	}

	result, err := compiledSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, errors.New(errors.KindParseError, op, fmt.Errorf("%w: %v", errors.ErrParsingFailed, err))
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return nil, errors.New(errors.KindInvalidMessage, op,
			fmt.Errorf("%w: %s", errors.ErrInvalidMessage, strings.Join(details, "; ")))
	}

	var m UnifiedMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.New(errors.KindInvalidMessage, op, fmt.Errorf("%w: %v", errors.ErrInvalidMessage, err))
	}
	return &m, nil
}

// Encode serializes m as a frame body.
func Encode(m *UnifiedMessage) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, errors.New(errors.KindParseError, "message.Encode", err)
	}
	return data, nil
}
