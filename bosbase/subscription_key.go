package bosbase

import (
	"encoding/json"
	"net/url"
	"strings"
)

// SubscribeOptions are extra request parameters attached to a push-stream subscription.
// The server applies them when it evaluates the topic (e.g. a record `filter` or `expand`).
type SubscribeOptions struct {
	Query   map[string]any
	Headers map[string]string
}

type subscriptionKeyOptions struct {
	Query   map[string]any    `json:"query,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// BuildSubscriptionKey canonicalizes a topic and its options into the key used
// both for registry lookups and for the server subscription list.
//
// The options are json encoded as an object so that equal maps always produce
// the same key, independent of map iteration order.
func BuildSubscriptionKey(topic string, options *SubscribeOptions) (string, error) {
	if topic == "" {
		return "", ErrInvalidTopic
	}
	if options == nil || (len(options.Query) == 0 && len(options.Headers) == 0) {
		return topic, nil
	}

	keyOptions := &subscriptionKeyOptions{}
	if 0 < len(options.Query) {
		keyOptions.Query = options.Query
	}
	if 0 < len(options.Headers) {
		keyOptions.Headers = options.Headers
	}
	optionsJson, err := json.Marshal(keyOptions)
	if err != nil {
		return "", err
	}

	// encodeURIComponent style, spaces as %20
	suffix := "options=" + strings.ReplaceAll(url.QueryEscape(string(optionsJson)), "+", "%20")
	if strings.Contains(topic, "?") {
		return topic + "&" + suffix, nil
	}
	return topic + "?" + suffix, nil
}

