package bosbase

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/go-playground/assert/v2"
)

func testToken(t *testing.T, exp time.Time) string {
	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{
		"id":  "user1",
		"exp": exp.Unix(),
	})
	tokenStr, err := token.SignedString([]byte("test"))
	assert.Equal(t, err, nil)
	return tokenStr
}

func TestAuthStoreValid(t *testing.T) {
	store := NewAuthStore()
	assert.Equal(t, store.IsValid(), false)

	token := testToken(t, time.Now().Add(time.Hour))
	store.Save(token, map[string]any{"id": "user1"})
	assert.Equal(t, store.Token(), token)
	assert.Equal(t, store.IsValid(), true)
	assert.Equal(t, store.Record(), map[string]any{"id": "user1"})

	store.Save(testToken(t, time.Now().Add(-time.Hour)), nil)
	assert.Equal(t, store.IsValid(), false)

	store.Save("not.a.jwt", nil)
	assert.Equal(t, store.IsValid(), false)

	store.Clear()
	assert.Equal(t, store.Token(), "")
	assert.Equal(t, store.Record(), nil)
	assert.Equal(t, store.IsValid(), false)
}

func TestAuthStoreNoExp(t *testing.T) {
	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{
		"id": "user1",
	})
	tokenStr, err := token.SignedString([]byte("test"))
	assert.Equal(t, err, nil)

	assert.Equal(t, isJwtValid(tokenStr, time.Now()), false)
}

func TestAuthStoreOnChange(t *testing.T) {
	store := NewAuthStore()

	tokens := []string{}
	remove := store.OnChange(func(token string, record map[string]any) {
		tokens = append(tokens, token)
	})
	store.OnChange(func(token string, record map[string]any) {
		panic("listener error")
	})

	store.Save("a", nil)
	store.Clear()
	remove()
	store.Save("b", nil)

	assert.Equal(t, tokens, []string{"a", ""})
}
