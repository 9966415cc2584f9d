package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventGetTopLevel(t *testing.T) {
	event := NewEvent(map[string]interface{}{"foo": 1, "bar": "baz"})

	v, ok := event.Get("foo")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = event.Get("missing")
	assert.False(t, ok)
}

func TestEventGetNested(t *testing.T) {
	event := NewEvent(map[string]interface{}{
		"user": map[string]interface{}{
			"profile": map[string]interface{}{"name": "ana"},
		},
		"flat": "x",
	})

	v, ok := event.Get("[user][profile][name]")
	require.True(t, ok)
	assert.Equal(t, "ana", v)

	v, ok = event.Get("[flat]")
	require.True(t, ok)
	assert.Equal(t, "x", v)

	_, ok = event.Get("[flat][deeper]")
	assert.False(t, ok, "lookup through a scalar must fail")

	_, ok = event.Get("[user][")
	assert.False(t, ok)
}

func TestShutdownEvent(t *testing.T) {
	assert.True(t, ShutdownEvent().IsShutdown())
	assert.False(t, NewEvent(nil).IsShutdown())
	assert.NotNil(t, NewEvent(nil).Fields)
}

func TestParseOperation(t *testing.T) {
	cases := map[string]Operation{
		"put":    Replace,
		"patch":  Merge,
		"post":   Append,
		"delete": Delete,
	}
	for verb, want := range cases {
		op, ok := ParseOperation(verb)
		require.True(t, ok, verb)
		assert.Equal(t, want, op)
		assert.Equal(t, verb, op.Verb())
	}

	for _, verb := range []string{"", "get", "PUT", " put", "merge"} {
		_, ok := ParseOperation(verb)
		assert.False(t, ok, verb)
	}
}

func TestOperationMethod(t *testing.T) {
	assert.Equal(t, "PUT", Replace.Method())
	assert.Equal(t, "PATCH", Merge.Method())
	assert.Equal(t, "POST", Append.Method())
	assert.Equal(t, "DELETE", Delete.Method())
	assert.Equal(t, "unknown", Operation(0).String())
}

func TestFirebaseConfigDefaults(t *testing.T) {
	var cfg FirebaseConfig

	assert.Equal(t, 10*time.Second, cfg.RequestTimeout())
	assert.Equal(t, 3, cfg.MaxRetries())
	ttl, ok := cfg.AuthRefreshInterval()
	assert.True(t, ok)
	assert.Equal(t, 23*time.Hour, ttl)
	assert.True(t, cfg.AsyncWrites())
}

func TestFirebaseConfigExplicitValues(t *testing.T) {
	retries := 0
	ttl := float64(AuthRefreshDisabled)
	async := false
	cfg := FirebaseConfig{Timeout: 2.5, Retries: &retries, AuthTTL: &ttl, Async: &async}

	assert.Equal(t, 2500*time.Millisecond, cfg.RequestTimeout())
	assert.Equal(t, 0, cfg.MaxRetries())
	_, ok := cfg.AuthRefreshInterval()
	assert.False(t, ok)
	assert.False(t, cfg.AsyncWrites())
}
