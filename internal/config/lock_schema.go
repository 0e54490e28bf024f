// Package config also owns the JSON schema for the on-disk directory lock
// file (spec §6 "Lock file format"). The teacher declares input schemas with
// google/jsonschema-go/jsonschema.Schema struct literals wherever it hands a
// schema to the MCP SDK for the SDK to resolve and validate internally
// (internal/mcp/server.go); the teacher never calls a resolve/validate
// method on jsonschema.Schema itself. Since this package validates a
// standalone on-disk document rather than handing the schema to an SDK, the
// schema literal below documents the shape the same way the teacher's tool
// schemas do, and the actual required-field/type checks are hand-written
// against it (see DESIGN.md: no example in the retrieval pack exercises
// jsonschema-go's own resolve/validate surface, so that part is stdlib).
package config

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

var lockSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"process_id":      {Type: "integer"},
		"created_at":      {Type: "string"},
		"directory":       {Type: "string"},
		"status":          {Type: "string"},
		"lock_file_path":  {Type: "string"},
		"timeout_seconds": {Type: "integer"},
		"metadata":        {Type: "object"},
	},
	Required: []string{"process_id", "created_at", "directory", "status", "lock_file_path"},
}

var lockSchemaStringFields = []string{"created_at", "directory", "status", "lock_file_path"}

// ValidateLockJSON parses raw and validates it against lockSchema's required
// fields and types. It returns the decoded fields on success, or an error
// describing the first violation (missing field, wrong type) on failure;
// the LockManager treats any such error as a corrupt lock (spec §4.2).
func ValidateLockJSON(raw []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("lock file is not valid JSON: %w", err)
	}

	for _, field := range lockSchema.Required {
		if _, ok := doc[field]; !ok {
			return nil, fmt.Errorf("lock file missing required field %q", field)
		}
	}

	if _, ok := doc["process_id"].(float64); !ok {
		return nil, fmt.Errorf("lock file field %q must be a number", "process_id")
	}
	for _, field := range lockSchemaStringFields {
		if _, ok := doc[field].(string); !ok {
			return nil, fmt.Errorf("lock file field %q must be a string", field)
		}
	}
	if raw, ok := doc["timeout_seconds"]; ok {
		if _, ok := raw.(float64); !ok {
			return nil, fmt.Errorf("lock file field %q must be a number", "timeout_seconds")
		}
	}
	if raw, ok := doc["metadata"]; ok {
		if _, ok := raw.(map[string]any); !ok {
			return nil, fmt.Errorf("lock file field %q must be an object", "metadata")
		}
	}

	return doc, nil
}
