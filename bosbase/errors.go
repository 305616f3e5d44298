package bosbase

import (
	"errors"
	"fmt"
)

// error type checking:
//   an error can be checked if it is any of these using errors.Is(err, ErrType)

// used for subscribe and publish arguments
var (
	ErrInvalidTopic    = errors.New("topic must be set")
	ErrInvalidCallback = errors.New("callback must be set")
)

// used for the live-update transports
var (
	ErrConnectionTimeout = errors.New("realtime connection not established")
	ErrOutboundFull      = errors.New("outbound queue full")
)

// used for config
var (
	ErrMissingBaseUrl = errors.New("base url must be set")
)

// ResponseError is a normalized http error.
// `Response` is the parsed json body when possible, otherwise the raw body string.
type ResponseError struct {
	Url      string
	Status   int
	Response any
	IsAbort  bool
	Err      error
}

func (self *ResponseError) Error() string {
	if self.Err != nil {
		return fmt.Sprintf("response error (status=%d, url=%s, abort=%t): %s", self.Status, self.Url, self.IsAbort, self.Err)
	}
	return fmt.Sprintf("response error (status=%d, url=%s): %v", self.Status, self.Url, self.Response)
}

func (self *ResponseError) Unwrap() error {
	return self.Err
}
