package types

import (
	"fmt"
	"strings"
)

// Event is a single record received from the upstream pipeline.
//
// Fields holds the decoded record. The output never mutates it; the only
// supported access is field lookup through Get.
type Event struct {
	Fields   map[string]interface{} `json:"fields"`
	shutdown bool
}

// NewEvent wraps a decoded record as an Event.
func NewEvent(fields map[string]interface{}) Event {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	return Event{Fields: fields}
}

// ShutdownEvent returns the sentinel the host emits when the pipeline is
// draining. Outputs must treat it as a no-op.
func ShutdownEvent() Event {
	return Event{shutdown: true}
}

// IsShutdown reports whether e is the shutdown sentinel.
func (e Event) IsShutdown() bool {
	return e.shutdown
}

// Get looks up a field reference. A reference is either a plain top level
// name ("user") or a bracketed path into nested objects ("[user][name]").
func (e Event) Get(ref string) (interface{}, bool) {
	keys, err := ParseFieldRef(ref)
	if err != nil {
		return nil, false
	}

	var current interface{} = e.Fields
	for _, key := range keys {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// ParseFieldRef splits a field reference into its path of keys.
func ParseFieldRef(ref string) ([]string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("empty field reference")
	}
	if !strings.HasPrefix(ref, "[") {
		return []string{ref}, nil
	}

	var keys []string
	rest := ref
	for rest != "" {
		if rest[0] != '[' {
			return nil, fmt.Errorf("malformed field reference %q", ref)
		}
		end := strings.IndexByte(rest, ']')
		if end <= 1 {
			return nil, fmt.Errorf("malformed field reference %q", ref)
		}
		keys = append(keys, rest[1:end])
		rest = rest[end+1:]
	}
	return keys, nil
}

// Operation is the write semantic applied at a path.
type Operation int

const (
	// Replace overwrites all data at the path.
	Replace Operation = iota + 1
	// Merge updates the given keys at the path and leaves the others alone.
	Merge
	// Append creates a new child with a server generated key.
	Append
	// Delete removes all data at the path.
	Delete
)

var operationVerbs = map[string]Operation{
	"put":    Replace,
	"patch":  Merge,
	"post":   Append,
	"delete": Delete,
}

// ParseOperation maps a verb to its Operation. Only the four lower case verbs
// put, patch, post and delete are recognized.
func ParseOperation(verb string) (Operation, bool) {
	op, ok := operationVerbs[verb]
	return op, ok
}

// Verb returns the configuration verb for the operation.
func (o Operation) Verb() string {
	switch o {
	case Replace:
		return "put"
	case Merge:
		return "patch"
	case Append:
		return "post"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Method returns the HTTP method used on the wire.
func (o Operation) Method() string {
	return strings.ToUpper(o.Verb())
}

func (o Operation) String() string {
	switch o {
	case Replace:
		return "replace"
	case Merge:
		return "merge"
	case Append:
		return "append"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}
