// Package template resolves %{field} placeholders against event fields.
//
// A template is compiled once and resolved per event:
//
//	tpl, _ := template.Compile("/users/%{user_id}/%{[meta][kind]}")
//	path, err := tpl.Resolve(event)
//
// Placeholders hold a field reference, either a top level name or a
// bracketed path into nested objects. A placeholder whose field is absent
// makes Resolve fail with an *UndefinedFieldError; there is no fallback.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"firebase-output/pkg/types"
)

// placeholderPattern matches %{ref}; ref may not contain a closing brace.
var placeholderPattern = regexp.MustCompile(`%\{([^{}]+)\}`)

type segment struct {
	literal string
	ref     string
}

// Template is a compiled template. It is immutable and safe for concurrent use.
type Template struct {
	source   string
	segments []segment
}

// Compile parses s into a Template. It fails only on placeholders whose
// field reference is malformed.
func Compile(s string) (*Template, error) {
	t := &Template{source: s}

	last := 0
	for _, loc := range placeholderPattern.FindAllStringSubmatchIndex(s, -1) {
		if loc[0] > last {
			t.segments = append(t.segments, segment{literal: s[last:loc[0]]})
		}
		ref := strings.TrimSpace(s[loc[2]:loc[3]])
		if _, err := types.ParseFieldRef(ref); err != nil {
			return nil, fmt.Errorf("template %q: %w", s, err)
		}
		t.segments = append(t.segments, segment{ref: ref})
		last = loc[1]
	}
	if last < len(s) {
		t.segments = append(t.segments, segment{literal: s[last:]})
	}

	return t, nil
}

// String returns the source text.
func (t *Template) String() string {
	return t.source
}

// IsStatic reports whether the template contains no placeholders.
func (t *Template) IsStatic() bool {
	for _, seg := range t.segments {
		if seg.ref != "" {
			return false
		}
	}
	return true
}

// Fields returns the field references used by the template, in order.
func (t *Template) Fields() []string {
	var refs []string
	for _, seg := range t.segments {
		if seg.ref != "" {
			refs = append(refs, seg.ref)
		}
	}
	return refs
}

// Resolve substitutes every placeholder with the string form of the
// referenced field.
func (t *Template) Resolve(event types.Event) (string, error) {
	var b strings.Builder
	var missing []string

	for _, seg := range t.segments {
		if seg.ref == "" {
			b.WriteString(seg.literal)
			continue
		}
		value, ok := event.Get(seg.ref)
		if !ok || value == nil {
			missing = append(missing, seg.ref)
			continue
		}
		str, err := stringify(value)
		if err != nil {
			return "", fmt.Errorf("field %s: %w", seg.ref, err)
		}
		b.WriteString(str)
	}

	if len(missing) > 0 {
		return "", &UndefinedFieldError{Names: missing}
	}
	return b.String(), nil
}

// stringify renders scalars the way they read in JSON and encodes objects
// and arrays as JSON.
func stringify(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case json.Number:
		return v.String(), nil
	case int, int32, int64, uint, uint32, uint64:
		return fmt.Sprintf("%d", v), nil
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

// UndefinedFieldError is returned when one or more placeholders reference
// fields the event does not have.
type UndefinedFieldError struct {
	Names []string
}

// Error implements the error interface.
func (e *UndefinedFieldError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("undefined field: %s", e.Names[0])
	}
	return fmt.Sprintf("undefined fields: %s", strings.Join(e.Names, ", "))
}
