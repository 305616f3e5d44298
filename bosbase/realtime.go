package bosbase

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
)

const DefaultRealtimePath = "/api/realtime"
const DefaultConnectEventName = "PB_CONNECT"

type RealtimeCallback func(data any)

// removes one listener. Calling it more than once has no effect.
type UnsubscribeFunction func()

type RealtimeSettings struct {
	Path             string
	ConnectEventName string
	// how long `Subscribe` waits for the handshake
	ConnectTimeout    time.Duration
	ReconnectSchedule []time.Duration
}

func DefaultRealtimeSettings() *RealtimeSettings {
	return &RealtimeSettings{
		Path:              DefaultRealtimePath,
		ConnectEventName:  DefaultConnectEventName,
		ConnectTimeout:    10 * time.Second,
		ReconnectSchedule: DefaultReconnectSchedule(),
	}
}

// RealtimeService multiplexes topic subscriptions over one server push stream.
//
// The stream is opened on the first subscribe. After each handshake the full set
// of subscription keys is submitted, so the server state is replaced rather than patched.
// The stream is closed when the last subscription is removed.
//
// Callbacks run on the stream goroutine in frame order. A callback may call an
// unsubscribe function, but must not call `Subscribe` or `Disconnect` synchronously.
type RealtimeService struct {
	ctx      context.Context
	api      Api
	identity IdentityProvider
	settings *RealtimeSettings

	subscriptions *subscriptionRegistry[RealtimeCallback]
	supervisor    *supervisor
}

func NewRealtimeService(ctx context.Context, api Api, identity IdentityProvider, settings *RealtimeSettings) *RealtimeService {
	realtime := &RealtimeService{
		ctx:      ctx,
		api:      api,
		identity: identity,
		settings: settings,
	}
	realtime.subscriptions = newSubscriptionRegistry[RealtimeCallback](realtime.keysRemoved)
	realtime.supervisor = newSupervisor(ctx, "rt", realtime.subscriptions.empty, realtime.run)
	return realtime
}

// registers `callback` for `topic` and waits for the connection to be ready.
// On timeout the registration is kept, and the returned function still removes it.
func (self *RealtimeService) Subscribe(topic string, callback RealtimeCallback, options *SubscribeOptions) (UnsubscribeFunction, error) {
	if callback == nil {
		return nil, ErrInvalidCallback
	}
	key, err := BuildSubscriptionKey(topic, options)
	if err != nil {
		return nil, err
	}

	listener := &subscriptionListener[RealtimeCallback]{
		id:       NewId(),
		callback: callback,
	}
	self.subscriptions.add(key, listener)
	unsubscribe := self.unsubscribeListener(key, listener.id)

	self.supervisor.ensureRunning()
	if !self.supervisor.ready.Wait(self.ctx, self.settings.ConnectTimeout) {
		return unsubscribe, fmt.Errorf("subscribe %s: %w", topic, ErrConnectionTimeout)
	}
	if err := self.submitSubscriptions(self.ctx); err != nil {
		glog.Infof("[rt]submit subscriptions error = %s\n", err)
	}
	return unsubscribe, nil
}

func (self *RealtimeService) unsubscribeListener(key string, listenerId Id) UnsubscribeFunction {
	var once sync.Once
	return func() {
		once.Do(func() {
			if self.subscriptions.remove(key, listenerId) {
				self.supervisor.stopIfIdle()
			}
		})
	}
}

// removes every listener of `topic`, including the keys of `topic` with options.
// An empty topic removes everything.
func (self *RealtimeService) Unsubscribe(topic string) {
	if topic == "" {
		self.subscriptions.removeAll()
	} else {
		self.subscriptions.removeTopic(topic)
	}
	self.supervisor.stopIfIdle()
}

func (self *RealtimeService) UnsubscribeByPrefix(keyPrefix string) {
	self.subscriptions.removeByPrefix(keyPrefix)
	self.supervisor.stopIfIdle()
}

// closes the stream and waits for the stream goroutine to exit.
// Subscriptions are kept and are replayed by the next `Subscribe`.
func (self *RealtimeService) Disconnect() {
	self.supervisor.stop()
}

func (self *RealtimeService) State() ConnectionState {
	return self.supervisor.State()
}

// the session id assigned by the server in the handshake, or empty if not connected
func (self *RealtimeService) ClientId() string {
	return self.supervisor.SessionId()
}

func (self *RealtimeService) IsConnected() bool {
	return self.supervisor.ready.IsSet()
}

// the registry hook. The server holds the full key set per client, so the
// remaining set is submitted, even when it is empty.
func (self *RealtimeService) keysRemoved(removedKeys []string) {
	glog.V(LogLevelTrace).Infof("[rt]removed %v\n", removedKeys)
	if !self.supervisor.ready.IsSet() {
		return
	}
	clientId := self.ClientId()
	if clientId == "" {
		return
	}
	if err := self.postSubscriptions(self.ctx, clientId, self.subscriptions.keys()); err != nil {
		glog.Infof("[rt]submit subscriptions error = %s\n", err)
	}
}

func (self *RealtimeService) submitSubscriptions(ctx context.Context) error {
	clientId := self.ClientId()
	if clientId == "" {
		return nil
	}
	keys := self.subscriptions.keys()
	if len(keys) == 0 {
		return nil
	}
	return self.postSubscriptions(ctx, clientId, keys)
}

func (self *RealtimeService) postSubscriptions(ctx context.Context, clientId string, keys []string) error {
	headers := map[string]string{}
	if self.identity.IsValid() {
		headers["Authorization"] = self.identity.Token()
	}
	_, err := self.api.Send(ctx, self.settings.Path, &SendOptions{
		Method:  http.MethodPost,
		Headers: headers,
		Body: map[string]any{
			"clientId":      clientId,
			"subscriptions": keys,
		},
	})
	return err
}

func (self *RealtimeService) run(ctx context.Context) {
	reconnect := NewBackoff(self.settings.ReconnectSchedule)
	for {
		self.supervisor.connecting()

		var stream io.ReadCloser
		var err error
		if glog.V(LogLevelTrace) {
			stream, err = TraceWithReturnError("[rt]open", func() (io.ReadCloser, error) {
				return self.open(ctx)
			})
		} else {
			stream, err = self.open(ctx)
		}
		if err == nil {
			reconnect.Reset()
			self.listen(ctx, stream)
			stream.Close()
		} else if ctx.Err() == nil {
			glog.Infof("[rt]connect error = %s\n", err)
		}

		self.supervisor.disconnected()
		if self.supervisor.shouldExit() {
			return
		}
		glog.V(LogLevelTrace).Infof("[rt]reconnect attempt %d\n", reconnect.Attempts()+1)
		if !reconnect.Wait(ctx) {
			return
		}
	}
}

func (self *RealtimeService) open(ctx context.Context) (io.ReadCloser, error) {
	headers := map[string]string{
		"Accept":        "text/event-stream",
		"Cache-Control": "no-store",
	}
	if self.identity.IsValid() {
		headers["Authorization"] = self.identity.Token()
	}
	return self.api.OpenStream(ctx, self.settings.Path, headers)
}

// reads frames until the stream ends or the service is stopped.
// The stream request is bound to `ctx`, so cancel unblocks a pending read.
func (self *RealtimeService) listen(ctx context.Context, stream io.Reader) {
	reader := newEventStreamReader(stream)
	for {
		event, err := reader.Next()
		if err != nil {
			if ctx.Err() == nil {
				glog.V(LogLevelLifecycle).Infof("[rt]stream closed = %s\n", err)
			}
			return
		}
		if self.supervisor.isStopped() {
			return
		}
		self.handleEvent(ctx, event)
	}
}

func (self *RealtimeService) handleEvent(ctx context.Context, event *StreamEvent) {
	payload := event.Payload()

	if event.Name == self.settings.ConnectEventName {
		self.handshake(ctx, event, payload)
		return
	}

	listeners := self.subscriptions.listenersFor(event.Name)
	glog.V(LogLevelTrace).Infof("[rt]event %s -> %d listeners\n", event.Name, len(listeners))
	dispatchListeners("rt", event.Name, listeners, func(callback RealtimeCallback) {
		callback(cloneJson(payload))
	})
}

// the session id is the `clientId` of the connect payload, with the frame id as fallback
func (self *RealtimeService) handshake(ctx context.Context, event *StreamEvent, payload any) {
	clientId := ""
	if data, ok := payload.(map[string]any); ok {
		if v, ok := data["clientId"].(string); ok {
			clientId = v
		}
	}
	if clientId == "" {
		clientId = event.Id
	}
	if clientId == "" {
		glog.Infof("[rt]connect event without a client id\n")
		return
	}

	self.supervisor.connected(clientId)
	glog.V(LogLevelLifecycle).Infof("[rt]connected %s\n", clientId)

	if err := self.submitSubscriptions(ctx); err != nil {
		glog.Infof("[rt]submit subscriptions error = %s\n", err)
	}
}
