package template

import (
	"errors"
	"testing"

	"firebase-output/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	event := types.NewEvent(map[string]interface{}{
		"p":      "/x",
		"v":      "patch",
		"id":     float64(42),
		"ratio":  0.5,
		"ok":     true,
		"user":   map[string]interface{}{"name": "ana", "tags": []interface{}{"a"}},
		"spaced": "a b",
	})

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{name: "static", template: "/a/b", expected: "/a/b"},
		{name: "whole placeholder", template: "%{p}", expected: "/x"},
		{name: "embedded", template: "/users/%{id}/events", expected: "/users/42/events"},
		{name: "float", template: "%{ratio}", expected: "0.5"},
		{name: "bool", template: "%{ok}", expected: "true"},
		{name: "nested", template: "/by-name/%{[user][name]}", expected: "/by-name/ana"},
		{name: "adjacent", template: "%{v}%{id}", expected: "patch42"},
		{name: "object as json", template: "%{[user][tags]}", expected: `["a"]`},
		{name: "unterminated left alone", template: "/a/%{p", expected: "/a/%{p"},
		{name: "spaces preserved", template: "%{spaced}", expected: "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl, err := Compile(tt.template)
			require.NoError(t, err)

			result, err := tpl.Resolve(event)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestResolveMissingField(t *testing.T) {
	tpl := mustCompile(t, "/%{a}/%{b}/%{c}")
	event := types.NewEvent(map[string]interface{}{"b": "x", "c": nil})

	_, err := tpl.Resolve(event)
	require.Error(t, err)

	var undefined *UndefinedFieldError
	require.True(t, errors.As(err, &undefined))
	assert.Equal(t, []string{"a", "c"}, undefined.Names)
	assert.Equal(t, "undefined fields: a, c", err.Error())
}

func TestCompileRejectsMalformedReference(t *testing.T) {
	_, err := Compile("/%{[broken}")
	assert.Error(t, err)

	_, err = Compile("%{[a]b}")
	assert.Error(t, err)
}

func TestTemplateIntrospection(t *testing.T) {
	static := mustCompile(t, "put")
	assert.True(t, static.IsStatic())
	assert.Empty(t, static.Fields())
	assert.Equal(t, "put", static.String())

	dynamic := mustCompile(t, "%{verb}-%{[a][b]}")
	assert.False(t, dynamic.IsStatic())
	assert.Equal(t, []string{"verb", "[a][b]"}, dynamic.Fields())
}

func TestEmptyTemplateResolvesToEmptyString(t *testing.T) {
	result, err := mustCompile(t, "").Resolve(types.NewEvent(nil))
	require.NoError(t, err)
	assert.Equal(t, "", result)
}

func mustCompile(t *testing.T, s string) *Template {
	t.Helper()
	tpl, err := Compile(s)
	require.NoError(t, err)
	return tpl
}
