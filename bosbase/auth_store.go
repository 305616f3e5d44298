package bosbase

import (
	"sync"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// IdentityProvider supplies the current auth token to the transports.
type IdentityProvider interface {
	Token() string
	// true if the token is present and not expired
	IsValid() bool
}

type AuthChangeFunction func(token string, record map[string]any)

// AuthStore holds the current auth token and the authenticated record.
// The store does not issue tokens, it only keeps what the caller saves.
type AuthStore struct {
	stateLock sync.Mutex
	token     string
	record    map[string]any

	listenerLock sync.Mutex
	listeners    []*subscriptionListener[AuthChangeFunction]
}

func NewAuthStore() *AuthStore {
	return &AuthStore{}
}

func (self *AuthStore) Token() string {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.token
}

func (self *AuthStore) Record() map[string]any {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	if self.record == nil {
		return nil
	}
	return cloneJson(self.record).(map[string]any)
}

func (self *AuthStore) IsValid() bool {
	token := self.Token()
	if token == "" {
		return false
	}
	return isJwtValid(token, time.Now())
}

func (self *AuthStore) Save(token string, record map[string]any) {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		self.token = token
		self.record = record
	}()

	self.listenerLock.Lock()
	listeners := self.listeners
	self.listenerLock.Unlock()

	dispatchListeners("auth", "change", listeners, func(callback AuthChangeFunction) {
		var recordCopy map[string]any
		if record != nil {
			recordCopy = cloneJson(record).(map[string]any)
		}
		callback(token, recordCopy)
	})
}

func (self *AuthStore) Clear() {
	self.Save("", nil)
}

// returns a function that removes the listener
func (self *AuthStore) OnChange(callback AuthChangeFunction) func() {
	listener := &subscriptionListener[AuthChangeFunction]{
		id:       NewId(),
		callback: callback,
	}

	self.listenerLock.Lock()
	defer self.listenerLock.Unlock()
	self.listeners = append(append([]*subscriptionListener[AuthChangeFunction]{}, self.listeners...), listener)

	return func() {
		self.listenerLock.Lock()
		defer self.listenerLock.Unlock()
		listeners := []*subscriptionListener[AuthChangeFunction]{}
		for _, l := range self.listeners {
			if l.id != listener.id {
				listeners = append(listeners, l)
			}
		}
		self.listeners = listeners
	}
}

// the signature is not verified, the server does that.
// The token is only checked for an `exp` claim in the future.
func isJwtValid(token string, now time.Time) bool {
	parser := gojwt.NewParser()
	claims := gojwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return now.Before(exp.Time)
}
