package bosbase

import (
	"strings"
	"sync"

	"golang.org/x/exp/slices"
)

// a listener is shared between the registry and any in-flight dispatch.
// The registry only drops its reference; a dispatch that already took a
// snapshot still delivers to it.
type subscriptionListener[T any] struct {
	id       Id
	callback T
}

// called with the keys whose last listener was removed.
// Runs after the registry lock is released, before the removing call returns.
type KeysRemovedFunction func(removedKeys []string)

// key -> ordered listeners
// an entry exists if and only if it has at least one listener
type subscriptionRegistry[T any] struct {
	stateLock sync.Mutex
	listeners map[string][]*subscriptionListener[T]

	keysRemoved KeysRemovedFunction
}

func newSubscriptionRegistry[T any](keysRemoved KeysRemovedFunction) *subscriptionRegistry[T] {
	return &subscriptionRegistry[T]{
		listeners:   map[string][]*subscriptionListener[T]{},
		keysRemoved: keysRemoved,
	}
}

// returns true if the key is new
func (self *subscriptionRegistry[T]) add(key string, listener *subscriptionListener[T]) bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	keyListeners, ok := self.listeners[key]
	self.listeners[key] = append(slices.Clone(keyListeners), listener)
	return !ok
}

// returns whether the key set changed
func (self *subscriptionRegistry[T]) remove(key string, listenerId Id) bool {
	removedKeys := func() []string {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		keyListeners, ok := self.listeners[key]
		if !ok {
			return nil
		}
		i := slices.IndexFunc(keyListeners, func(listener *subscriptionListener[T]) bool {
			return listener.id == listenerId
		})
		if i < 0 {
			return nil
		}
		if len(keyListeners) == 1 {
			delete(self.listeners, key)
			return []string{key}
		}
		// copy on write, snapshots held by a dispatch are not modified
		self.listeners[key] = slices.Delete(slices.Clone(keyListeners), i, i+1)
		return nil
	}()

	return self.notifyRemoved(removedKeys)
}

// removes the key equal to `topic` and every key of the topic with options
func (self *subscriptionRegistry[T]) removeTopic(topic string) bool {
	return self.removeMatching(func(key string) bool {
		return key == topic || strings.HasPrefix(key, topic+"?")
	})
}

func (self *subscriptionRegistry[T]) removeByPrefix(prefix string) bool {
	return self.removeMatching(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}

func (self *subscriptionRegistry[T]) removeAll() bool {
	return self.removeMatching(func(key string) bool {
		return true
	})
}

func (self *subscriptionRegistry[T]) removeMatching(match func(key string) bool) bool {
	removedKeys := func() []string {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		removedKeys := []string{}
		for key := range self.listeners {
			if match(key) {
				removedKeys = append(removedKeys, key)
			}
		}
		for _, key := range removedKeys {
			delete(self.listeners, key)
		}
		return removedKeys
	}()

	return self.notifyRemoved(removedKeys)
}

func (self *subscriptionRegistry[T]) notifyRemoved(removedKeys []string) bool {
	if len(removedKeys) == 0 {
		return false
	}
	slices.Sort(removedKeys)
	if self.keysRemoved != nil {
		self.keysRemoved(removedKeys)
	}
	return true
}

// sorted
func (self *subscriptionRegistry[T]) keys() []string {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	keys := make([]string, 0, len(self.listeners))
	for key := range self.listeners {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// snapshot of the listeners for the exact key.
// Listener slices are copy on write so the returned slice is never modified.
func (self *subscriptionRegistry[T]) listenersFor(key string) []*subscriptionListener[T] {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.listeners[key]
}

func (self *subscriptionRegistry[T]) empty() bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return len(self.listeners) == 0
}
