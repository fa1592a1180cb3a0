package scenario

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaSource string

const schemaURL = "https://trustsim.local/schemas/scenario.schema.json"

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(schemaSource)); err != nil {
		return nil, fmt.Errorf("scenario schema load: %w", err)
	}
	return c.Compile(schemaURL)
})

// #region parse
// Parse decodes a YAML or JSON document, checks it against the embedded
// JSON Schema and then against Validate.
func Parse(data []byte) (*Doc, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidDocument)
	}
	normalized, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	var inst any
	if err := json.Unmarshal(normalized, &inst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	var doc Doc
	if err := json.Unmarshal(normalized, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ParseFile reads and parses a document from disk.
func ParseFile(path string) (*Doc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}

// Marshal renders a document as YAML.
func Marshal(doc *Doc) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode scenario: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode scenario: %w", err)
	}
	return buf.Bytes(), nil
}

// #endregion parse

// #region validate
// Validate checks the structural invariants the schema cannot express.
func (d *Doc) Validate() error {
	var problems []string
	if d.ID == "" {
		problems = append(problems, "id is required")
	}
	if d.Mode != ModeSafe && d.Mode != ModeReal {
		problems = append(problems, fmt.Sprintf("unknown mode %q", d.Mode))
	}

	actors := make(map[string]bool, len(d.Actors))
	for _, a := range d.Actors {
		if actors[a.ID] {
			problems = append(problems, fmt.Sprintf("duplicate actor %q", a.ID))
		}
		actors[a.ID] = true
	}

	steps := make(map[string]bool, len(d.Steps))
	for i, s := range d.Steps {
		if s.ID == "" {
			problems = append(problems, fmt.Sprintf("step %d: id is required", i))
		} else if steps[s.ID] {
			problems = append(problems, fmt.Sprintf("duplicate step id %q", s.ID))
		}
		steps[s.ID] = true
		if !actors[s.As] {
			problems = append(problems, fmt.Sprintf("step %q: undeclared actor %q", s.ID, s.As))
		}
		for _, ref := range placeholderRefs(s.Params) {
			if !actors[ref] {
				problems = append(problems, fmt.Sprintf("step %q: placeholder {{%s}} names no declared actor", s.ID, ref))
			}
		}
	}

	for i, a := range d.Assertions {
		refs := a.Actors
		if a.Actor != "" {
			refs = append([]string{a.Actor}, refs...)
		}
		for _, ref := range refs {
			if !actors[ref] {
				problems = append(problems, fmt.Sprintf("assertion %d: undeclared actor %q", i, ref))
			}
		}
		switch a.Type {
		case AssertReputationDeltaBounded, AssertTrustStabilizes:
			if a.Actor == "" {
				problems = append(problems, fmt.Sprintf("assertion %d: %s needs actor", i, a.Type))
			}
		case AssertNoLinearBoost:
			if len(a.Actors) == 0 {
				problems = append(problems, fmt.Sprintf("assertion %d: %s needs actors", i, a.Type))
			}
		case AssertExpression:
			if a.Expr == "" {
				problems = append(problems, fmt.Sprintf("assertion %d: expression needs expr", i))
			}
		case AssertAbuseSignalsTriggered:
		default:
			problems = append(problems, fmt.Sprintf("assertion %d: unknown type %q", i, a.Type))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(problems, "; "))
	}
	return nil
}

// ActorRefs lists declared actor references in order.
func (d *Doc) ActorRefs() []string {
	out := make([]string, len(d.Actors))
	for i, a := range d.Actors {
		out[i] = a.ID
	}
	return out
}

// #endregion validate
