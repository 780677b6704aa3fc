package tools

import (
	"fmt"
	"slices"
	"strings"
)

// Rule is a named cross-field constraint evaluated after the schema pass.
type Rule struct {
	Name  string
	Check func(input map[string]any) []Issue
}

// Condition selects inputs where Field holds one of Values.
type Condition struct {
	Field  string
	Values []string
}

func FieldEquals(field string, values ...string) Condition {
	return Condition{Field: field, Values: values}
}

func (c Condition) Holds(input map[string]any) bool {
	s, ok := input[c.Field].(string)
	return ok && slices.Contains(c.Values, s)
}

func (c Condition) String() string {
	if len(c.Values) == 1 {
		return fmt.Sprintf("%s is %q", c.Field, c.Values[0])
	}
	return fmt.Sprintf("%s is one of %s", c.Field, strings.Join(c.Values, ", "))
}

func present(input map[string]any, field string) bool {
	v, ok := input[field]
	if !ok {
		return false
	}
	if s, isStr := v.(string); isStr {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// RequiredTogether requires that fields are either all present or all absent.
func RequiredTogether(fields ...string) Rule {
	name := "required_together"
	return Rule{Name: name, Check: func(input map[string]any) []Issue {
		n := 0
		for _, f := range fields {
			if present(input, f) {
				n++
			}
		}
		if n == 0 || n == len(fields) {
			return nil
		}
		return []Issue{{
			Field:   strings.Join(fields, ","),
			Rule:    name,
			Message: strings.Join(fields, " and ") + " must be provided together",
		}}
	}}
}

// AllowedOnlyWhen forbids fields unless cond holds.
func AllowedOnlyWhen(cond Condition, fields ...string) Rule {
	name := "allowed_only_when"
	return Rule{Name: name, Check: func(input map[string]any) []Issue {
		if cond.Holds(input) {
			return nil
		}
		var issues []Issue
		for _, f := range fields {
			if present(input, f) {
				issues = append(issues, Issue{Field: f, Rule: name,
					Message: fmt.Sprintf("%s is only allowed when %s", f, cond)})
			}
		}
		return issues
	}}
}

// RequiredWhen requires every field when cond holds.
func RequiredWhen(cond Condition, fields ...string) Rule {
	name := "required_when"
	return Rule{Name: name, Check: func(input map[string]any) []Issue {
		if !cond.Holds(input) {
			return nil
		}
		var issues []Issue
		for _, f := range fields {
			if !present(input, f) {
				issues = append(issues, Issue{Field: f, Rule: name,
					Message: fmt.Sprintf("%s is required when %s", f, cond)})
			}
		}
		return issues
	}}
}

// AnyRequiredWhen requires at least one of fields when cond holds.
func AnyRequiredWhen(cond Condition, fields ...string) Rule {
	name := "any_required_when"
	return Rule{Name: name, Check: func(input map[string]any) []Issue {
		if !cond.Holds(input) {
			return nil
		}
		for _, f := range fields {
			if present(input, f) {
				return nil
			}
		}
		return []Issue{{Field: strings.Join(fields, ","), Rule: name,
			Message: fmt.Sprintf("one of %s is required when %s", strings.Join(fields, ", "), cond)}}
	}}
}

// ForbiddenWhen rejects fields when cond holds.
func ForbiddenWhen(cond Condition, fields ...string) Rule {
	name := "forbidden_when"
	return Rule{Name: name, Check: func(input map[string]any) []Issue {
		if !cond.Holds(input) {
			return nil
		}
		var issues []Issue
		for _, f := range fields {
			if present(input, f) {
				issues = append(issues, Issue{Field: f, Rule: name,
					Message: fmt.Sprintf("%s must not be set when %s", f, cond)})
			}
		}
		return issues
	}}
}

// Custom wraps a single-field check. check returns "" when the input is fine.
func Custom(name, field string, check func(input map[string]any) string) Rule {
	return Rule{Name: name, Check: func(input map[string]any) []Issue {
		if msg := check(input); msg != "" {
			return []Issue{{Field: field, Rule: name, Message: msg}}
		}
		return nil
	}}
}
