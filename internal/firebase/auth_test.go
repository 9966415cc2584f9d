package firebase

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseToken(t *testing.T, token, secret string) jwt.MapClaims {
	t.Helper()

	parsed, err := jwt.Parse(token, func(tok *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)

	claims, ok := parsed.Claims.(jwt.MapClaims)
	require.True(t, ok)
	return claims
}

func TestTokenSourceSignsClaims(t *testing.T) {
	now := time.Unix(1700000000, 0)
	source := NewTokenSource("s3cret", map[string]interface{}{"uid": "writer"}, time.Hour, true)
	source.now = func() time.Time { return now }

	token, err := source.Token()
	require.NoError(t, err)

	claims := parseToken(t, token, "s3cret")
	assert.Equal(t, float64(0), claims["v"])
	assert.Equal(t, float64(now.Unix()), claims["iat"])
	assert.Equal(t, map[string]interface{}{"uid": "writer"}, claims["d"])
}

func TestTokenSourceRefreshesAfterTTL(t *testing.T) {
	now := time.Unix(1700000000, 0)
	source := NewTokenSource("s3cret", nil, time.Hour, true)
	source.now = func() time.Time { return now }

	generated := 0
	source.onRefresh = func(time.Time) { generated++ }

	first, err := source.Token()
	require.NoError(t, err)

	now = now.Add(59 * time.Minute)
	second, err := source.Token()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, generated)

	now = now.Add(time.Minute)
	third, err := source.Token()
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
	assert.Equal(t, 2, generated)
}

func TestTokenSourceRefreshDisabled(t *testing.T) {
	now := time.Unix(1700000000, 0)
	source := NewTokenSource("s3cret", nil, 0, false)
	source.now = func() time.Time { return now }

	first, err := source.Token()
	require.NoError(t, err)

	now = now.Add(48 * time.Hour)
	second, err := source.Token()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTokenSourceInvalidateAndClose(t *testing.T) {
	source := NewTokenSource("s3cret", nil, time.Hour, true)
	generated := 0
	source.onRefresh = func(time.Time) { generated++ }

	_, err := source.Token()
	require.NoError(t, err)
	source.Invalidate()
	_, err = source.Token()
	require.NoError(t, err)
	assert.Equal(t, 2, generated)

	source.Close()
	_, err = source.Token()
	assert.ErrorIs(t, err, ErrTokenSourceClosed)
}

func TestTokenSourceWithoutSecret(t *testing.T) {
	source := NewTokenSource("", nil, time.Hour, true)

	token, err := source.Token()
	require.NoError(t, err)
	assert.Empty(t, token)
}
