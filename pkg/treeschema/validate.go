package treeschema

import (
	"encoding/json"
	"fmt"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// schemaJSON is the hand-authored JSON Schema for the tree document shape
// above. Small and stable enough that generating it via struct reflection
// (the teacher's invopop/jsonschema route, pkg/schema/export.go) would add
// a second schema library for no real benefit over santhosh-tekuri/jsonschema/v6,
// which this package already uses to validate (SPEC_FULL.md §11's dropped-dep
// note on invopop/jsonschema).
const schemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://github.com/ormasoftchile/stepengine/schemas/tree-v1.json",
  "title": "stepengine tree document",
  "type": "object",
  "required": ["branches"],
  "properties": {
    "apiVersion": {"type": "string"},
    "functions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "filename": {"type": "string"},
          "lineNumber": {"type": "integer", "minimum": 0},
          "codeBlock": {"type": "string"}
        }
      }
    },
    "branches": {
      "type": "array",
      "items": {"$ref": "#/$defs/branch"}
    }
  },
  "$defs": {
    "branch": {
      "type": "object",
      "required": ["steps"],
      "properties": {
        "beforeEveryBranch": {"type": "array", "items": {"$ref": "#/$defs/step"}},
        "afterEveryBranch": {"type": "array", "items": {"$ref": "#/$defs/step"}},
        "beforeEveryStep": {"type": "array", "items": {"$ref": "#/$defs/step"}},
        "afterEveryStep": {"type": "array", "items": {"$ref": "#/$defs/step"}},
        "steps": {"type": "array", "minItems": 1, "items": {"$ref": "#/$defs/step"}}
      }
    },
    "step": {
      "type": "object",
      "required": ["text", "branchIndents"],
      "properties": {
        "filename": {"type": "string"},
        "lineNumber": {"type": "integer", "minimum": 0},
        "text": {"type": "string", "minLength": 1},
        "branchIndents": {"type": "integer", "minimum": 0},
        "isExpectedFail": {"type": "boolean"},
        "isBeforeDebug": {"type": "boolean"},
        "isAfterDebug": {"type": "boolean"},
        "isPackaged": {"type": "boolean"},
        "codeBlock": {"type": "string"},
        "functionCall": {"type": "string"},
        "varsBeingSet": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["name", "value"],
            "properties": {
              "name": {"type": "string", "minLength": 1},
              "value": {"type": "string"},
              "isLocal": {"type": "boolean"}
            }
          }
        }
      }
    }
  }
}`

// CompileSchema compiles the tree document schema once; callers may share
// the result across many Validate calls.
func CompileSchema() (*sjsonschema.Schema, error) {
	var schemaDoc any
	if err := json.Unmarshal([]byte(schemaJSON), &schemaDoc); err != nil {
		return nil, fmt.Errorf("unmarshal tree schema: %w", err)
	}
	c := sjsonschema.NewCompiler()
	if err := c.AddResource("tree-v1.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add tree schema resource: %w", err)
	}
	sch, err := c.Compile("tree-v1.json")
	if err != nil {
		return nil, fmt.Errorf("compile tree schema: %w", err)
	}
	return sch, nil
}

// Validate re-marshals doc to JSON and checks it against the compiled
// schema, surfacing malformed trees before they reach the engine (spec §1:
// "tree parsing... is out of scope" but a document loaded from disk still
// needs a pre-flight check the way the teacher's ValidateFile does for
// runbooks).
func Validate(sch *sjsonschema.Schema, doc *Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal tree document: %w", err)
	}
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("unmarshal tree document: %w", err)
	}
	if err := sch.Validate(instance); err != nil {
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			return fmt.Errorf("tree document invalid:\n%s", strings.Join(flatten(ve), "\n"))
		}
		return fmt.Errorf("tree document invalid: %w", err)
	}
	return nil
}

func flatten(ve *sjsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		return []string{fmt.Sprintf("  %s: %v", strings.Join(ve.InstanceLocation, "/"), ve.ErrorKind)}
	}
	var out []string
	for _, cause := range ve.Causes {
		out = append(out, flatten(cause)...)
	}
	return out
}
