package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const decisionSchema = `{
  "type": "object",
  "required": ["use_capability"],
  "properties": {
    "use_capability": {"type": "boolean"},
    "capability_name": {"type": "string"},
    "arguments": {"type": "object"},
    "rationale": {"type": "string"},
    "follow_up_hint": {"type": "string"}
  },
  "if": {"properties": {"use_capability": {"const": true}}},
  "then": {
    "required": ["capability_name"],
    "properties": {"capability_name": {"minLength": 1}}
  }
}`

const assessmentSchema = `{
  "type": "object",
  "required": ["succeeded", "complete"],
  "properties": {
    "succeeded": {"type": "boolean"},
    "complete": {"type": "boolean"},
    "summary": {"type": "string"},
    "missing_info": {"type": "string"}
  }
}`

var (
	decisionValidator   = mustCompile(decisionSchema)
	assessmentValidator = mustCompile(assessmentSchema)
)

func mustCompile(src string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
	if err != nil {
		panic(fmt.Sprintf("oracle schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		panic(fmt.Sprintf("oracle schema: %v", err))
	}
	s, err := c.Compile("schema.json")
	if err != nil {
		panic(fmt.Sprintf("oracle schema: %v", err))
	}
	return s
}

// ParseDecision extracts and validates a Decision from raw oracle text.
func ParseDecision(text string) (*Decision, error) {
	var d Decision
	if err := parseStrict(text, decisionValidator, &d); err != nil {
		return nil, err
	}
	if !d.UseCapability {
		// The variant without a capability carries no call details.
		d.CapabilityName, d.Arguments = "", nil
	}
	return &d, nil
}

// ParseAssessment extracts and validates an Assessment from raw oracle text.
func ParseAssessment(text string) (*Assessment, error) {
	var a Assessment
	if err := parseStrict(text, assessmentValidator, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func parseStrict(text string, schema *jsonschema.Schema, dst any) error {
	raw := extractJSON(text)
	if raw == "" {
		return fmt.Errorf("%w: no JSON object in reply", ErrMalformed)
	}
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// extractJSON finds the JSON object in a reply: a fenced ```json block, a
// plain fenced block, or the first balanced object in the text.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if isJSONObject(text) {
		return text
	}

	for _, fence := range []string{"```json", "```"} {
		idx := strings.Index(text, fence)
		if idx < 0 {
			continue
		}
		rest := strings.TrimPrefix(text[idx+len(fence):], "\n")
		if end := strings.Index(rest, "```"); end >= 0 {
			if candidate := strings.TrimSpace(rest[:end]); isJSONObject(candidate) {
				return candidate
			}
		}
	}

	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		if candidate := balancedObject(text[i:]); candidate != "" && isJSONObject(candidate) {
			return candidate
		}
	}
	return ""
}

func isJSONObject(s string) bool {
	if !strings.HasPrefix(s, "{") {
		return false
	}
	var v map[string]any
	return json.Unmarshal([]byte(s), &v) == nil
}

// balancedObject returns the prefix of s up to the brace closing s[0].
func balancedObject(s string) string {
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}
