package tools

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Issue is one failed check on a tool input.
type Issue struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError is returned to the model as the tool output so it can
// correct the call. It is never surfaced as an HTTP error.
type ValidationError struct {
	Tool   string  `json:"tool"`
	Issues []Issue `json:"issues"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		msgs[i] = is.Message
	}
	return fmt.Sprintf("invalid input for %s: %s", e.Tool, strings.Join(msgs, "; "))
}

// compileSchema compiles the tool's input schema. Properties the schema does
// not declare are rejected unless the schema says otherwise.
func compileSchema(tool mcp.Tool) (*jsonschema.Schema, error) {
	data := []byte(tool.RawInputSchema)
	if len(data) == 0 {
		var err error
		if data, err = json.Marshal(tool.InputSchema); err != nil {
			return nil, fmt.Errorf("marshal schema: %w", err)
		}
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if obj, ok := doc.(map[string]any); ok {
		if _, set := obj["additionalProperties"]; !set {
			obj["additionalProperties"] = false
		}
	}

	url := "mem://tools/" + tool.Name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// Validate checks input against the tool's schema and then every rule.
// JSON null values are treated as absent and removed from input.
func (d *Definition) Validate(input map[string]any) error {
	for k, v := range input {
		if v == nil {
			delete(input, k)
		}
	}

	schema := d.schema
	if schema == nil {
		var err error
		if schema, err = compileSchema(d.Tool); err != nil {
			return fmt.Errorf("compile %s schema: %w", d.Tool.Name, err)
		}
	}

	issues := schemaIssues(schema.Validate(input))
	for _, rule := range d.Rules {
		issues = append(issues, rule.Check(input)...)
	}
	if len(issues) == 0 {
		return nil
	}
	return &ValidationError{Tool: d.Tool.Name, Issues: issues}
}

// schemaIssues flattens a validation error into one Issue per failed keyword.
func schemaIssues(err error) []Issue {
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []Issue{{Rule: "schema", Message: err.Error()}}
	}

	var issues []Issue
	var walk func(*jsonschema.ValidationError)
	walk = func(ve *jsonschema.ValidationError) {
		if len(ve.Causes) > 0 {
			for _, c := range ve.Causes {
				walk(c)
			}
			return
		}
		issues = append(issues, leafIssues(ve)...)
	}
	walk(verr)

	slices.SortStableFunc(issues, func(a, b Issue) int {
		return cmp.Or(cmp.Compare(a.Field, b.Field), cmp.Compare(a.Rule, b.Rule))
	})
	return issues
}

func leafIssues(ve *jsonschema.ValidationError) []Issue {
	at := strings.Join(ve.InstanceLocation, ".")
	switch k := ve.ErrorKind.(type) {
	case *kind.Required:
		out := make([]Issue, 0, len(k.Missing))
		for _, name := range k.Missing {
			f := joinField(at, name)
			out = append(out, Issue{Field: f, Rule: "required", Message: f + " is required"})
		}
		return out
	case *kind.AdditionalProperties:
		out := make([]Issue, 0, len(k.Properties))
		for _, name := range k.Properties {
			f := joinField(at, name)
			out = append(out, Issue{Field: f, Rule: "unknown_field", Message: "unknown field " + f})
		}
		return out
	}

	msg := ve.ErrorKind.LocalizedString(printer)
	if at != "" {
		msg = at + ": " + msg
	}
	return []Issue{{Field: at, Rule: ruleName(ve.ErrorKind.KeywordPath()), Message: msg}}
}

func joinField(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

// ruleName turns a schema keyword such as minLength into min_length.
func ruleName(path []string) string {
	if len(path) == 0 {
		return "schema"
	}
	var b strings.Builder
	for i, r := range path[0] {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
