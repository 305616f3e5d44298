package bosbase

import (
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestSubscriptionKeyNoOptions(t *testing.T) {
	key, err := BuildSubscriptionKey("posts/*", nil)
	assert.Equal(t, err, nil)
	assert.Equal(t, key, "posts/*")

	// empty options are no options
	key, err = BuildSubscriptionKey("posts/*", &SubscribeOptions{
		Query:   map[string]any{},
		Headers: map[string]string{},
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, key, "posts/*")
}

func TestSubscriptionKeyEmptyTopic(t *testing.T) {
	_, err := BuildSubscriptionKey("", nil)
	assert.Equal(t, errors.Is(err, ErrInvalidTopic), true)
}

func TestSubscriptionKeyOptions(t *testing.T) {
	key, err := BuildSubscriptionKey("posts/*", &SubscribeOptions{
		Query: map[string]any{
			"filter": "a = 1",
		},
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, strings.HasPrefix(key, "posts/*?options="), true)
	// spaces are %20, never +
	assert.Equal(t, strings.Contains(key, "+"), false)
	assert.Equal(t, strings.Contains(key, "%20"), true)

	optionsJson, err := url.QueryUnescape(strings.TrimPrefix(key, "posts/*?options="))
	assert.Equal(t, err, nil)
	assert.Equal(t, optionsJson, `{"query":{"filter":"a = 1"}}`)

	// a topic with a query appends
	key, err = BuildSubscriptionKey("posts/*?x=1", &SubscribeOptions{
		Headers: map[string]string{
			"X-Token": "t",
		},
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, strings.HasPrefix(key, "posts/*?x=1&options="), true)
}

func TestSubscriptionKeyStable(t *testing.T) {
	// equal maps give equal keys independent of insertion order
	a := map[string]any{}
	b := map[string]any{}
	names := []string{"filter", "expand", "fields", "sort", "page", "perPage"}
	for i, name := range names {
		a[name] = i
		b[names[len(names)-1-i]] = len(names) - 1 - i
	}

	for range 32 {
		keyA, err := BuildSubscriptionKey("t", &SubscribeOptions{Query: a})
		assert.Equal(t, err, nil)
		keyB, err := BuildSubscriptionKey("t", &SubscribeOptions{Query: b})
		assert.Equal(t, err, nil)
		assert.Equal(t, keyA, keyB)
	}

	// different options or topics give different keys
	keyA, _ := BuildSubscriptionKey("t", &SubscribeOptions{Query: map[string]any{"filter": "a"}})
	keyB, _ := BuildSubscriptionKey("t", &SubscribeOptions{Query: map[string]any{"filter": "b"}})
	keyC, _ := BuildSubscriptionKey("u", &SubscribeOptions{Query: map[string]any{"filter": "a"}})
	assert.NotEqual(t, keyA, keyB)
	assert.NotEqual(t, keyA, keyC)
	assert.NotEqual(t, keyA, "t")
}
