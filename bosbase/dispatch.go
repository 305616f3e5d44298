package bosbase

import (
	"github.com/golang/glog"
)

// invokes each listener in registration order. Each call is isolated:
// a panic is recovered and logged, and the remaining listeners still run.
// The listener stays registered.
func dispatchListeners[T any](tag string, key string, listeners []*subscriptionListener[T], invoke func(callback T)) {
	for _, listener := range listeners {
		HandleError(func() {
			invoke(listener.callback)
		}, func(err error) {
			glog.Infof("[%s]listener %s (%s) on %s failed = %s\n", tag, listener.id, CallbackName(listener.callback), key, err)
		})
	}
}

// deep copy of a decoded json value so each listener owns its payload
func cloneJson(value any) any {
	switch v := value.(type) {
	case map[string]any:
		c := make(map[string]any, len(v))
		for key, item := range v {
			c[key] = cloneJson(item)
		}
		return c
	case []any:
		c := make([]any, len(v))
		for i, item := range v {
			c[i] = cloneJson(item)
		}
		return c
	default:
		// strings, numbers, bools and nil are immutable
		return v
	}
}
