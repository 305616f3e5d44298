package bosbase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

const DefaultPubSubPath = "/api/pubsub"

type PubSubCallback func(message *PubSubMessage)

// an inbound socket message, or the local echo of a publish
type PubSubMessage struct {
	Id      string
	Topic   string
	Created string
	Data    any
}

type pubSubEnvelope struct {
	Type  string `json:"type"`
	Topic string `json:"topic,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// a marshaled envelope waiting for the socket
type outboundEnvelope struct {
	envelopeType string
	message      []byte
}

type PubSubSettings struct {
	Path string
	// how long `Subscribe` and `Publish` wait for the socket
	ConnectTimeout     time.Duration
	ReconnectTimeout   time.Duration
	WsHandshakeTimeout time.Duration
	WriteTimeout       time.Duration
	// pending outbound envelopes. Producers never block, an envelope is dropped when full.
	OutboundBufferSize int
	ReceiveBufferSize  int
}

func DefaultPubSubSettings() *PubSubSettings {
	return &PubSubSettings{
		Path:               DefaultPubSubPath,
		ConnectTimeout:     10 * time.Second,
		ReconnectTimeout:   300 * time.Millisecond,
		WsHandshakeTimeout: 5 * time.Second,
		WriteTimeout:       5 * time.Second,
		OutboundBufferSize: 64,
		ReceiveBufferSize:  16,
	}
}

// PubSubService multiplexes topic subscriptions over one bidirectional socket.
//
// Readiness is set when the socket opens. Each new socket sends a greeting and then
// replays one subscribe envelope per registered topic. Outbound envelopes are queued and
// written by the socket goroutine, which also dispatches inbound messages.
//
// Callbacks run on the socket goroutine. A callback may call an unsubscribe function,
// but must not call `Subscribe`, `Publish` or `Disconnect` synchronously.
type PubSubService struct {
	ctx      context.Context
	api      Api
	identity IdentityProvider
	settings *PubSubSettings

	subscriptions *subscriptionRegistry[PubSubCallback]
	supervisor    *supervisor

	// orders the replay of a new socket against subscribe,
	// so each topic is subscribed exactly once per socket
	sessionLock sync.Mutex

	outbound chan *outboundEnvelope
}

func NewPubSubService(ctx context.Context, api Api, identity IdentityProvider, settings *PubSubSettings) *PubSubService {
	pubSub := &PubSubService{
		ctx:      ctx,
		api:      api,
		identity: identity,
		settings: settings,
		outbound: make(chan *outboundEnvelope, settings.OutboundBufferSize),
	}
	pubSub.subscriptions = newSubscriptionRegistry[PubSubCallback](pubSub.keysRemoved)
	pubSub.supervisor = newSupervisor(ctx, "ps", pubSub.subscriptions.empty, pubSub.run)
	return pubSub
}

func (self *PubSubService) Subscribe(topic string, callback PubSubCallback) (UnsubscribeFunction, error) {
	if topic == "" {
		return nil, ErrInvalidTopic
	}
	if callback == nil {
		return nil, ErrInvalidCallback
	}

	listener := &subscriptionListener[PubSubCallback]{
		id:       NewId(),
		callback: callback,
	}
	func() {
		self.sessionLock.Lock()
		defer self.sessionLock.Unlock()
		// when not ready, the topic is sent with the replay of the next socket
		if self.subscriptions.add(topic, listener) && self.supervisor.ready.IsSet() {
			self.enqueue(&pubSubEnvelope{
				Type:  "subscribe",
				Topic: topic,
			})
		}
	}()

	unsubscribe := self.unsubscribeListener(topic, listener.id)

	self.supervisor.ensureRunning()
	if !self.supervisor.ready.Wait(self.ctx, self.settings.ConnectTimeout) {
		return unsubscribe, fmt.Errorf("subscribe %s: %w", topic, ErrConnectionTimeout)
	}
	return unsubscribe, nil
}

func (self *PubSubService) unsubscribeListener(topic string, listenerId Id) UnsubscribeFunction {
	var once sync.Once
	return func() {
		once.Do(func() {
			if self.subscriptions.remove(topic, listenerId) {
				self.supervisor.stopIfIdle()
			}
		})
	}
}

// removes every listener of `topic`. An empty topic removes everything.
func (self *PubSubService) Unsubscribe(topic string) {
	if topic == "" {
		self.subscriptions.removeAll()
	} else {
		self.subscriptions.removeMatching(func(key string) bool {
			return key == topic
		})
	}
	self.supervisor.stopIfIdle()
}

// queues `data` for `topic` once the socket is ready.
// The returned message is the local echo. The server assigns the id and creation time.
func (self *PubSubService) Publish(topic string, data any) (*PubSubMessage, error) {
	if topic == "" {
		return nil, ErrInvalidTopic
	}

	self.supervisor.ensureRunning()
	if !self.supervisor.ready.Wait(self.ctx, self.settings.ConnectTimeout) {
		return nil, fmt.Errorf("publish %s: %w", topic, ErrConnectionTimeout)
	}
	err := self.enqueue(&pubSubEnvelope{
		Type:  "publish",
		Topic: topic,
		Data:  data,
	})
	if err != nil {
		return nil, err
	}
	return &PubSubMessage{
		Topic: topic,
		Data:  data,
	}, nil
}

// closes the socket and waits for the socket goroutine to exit.
// Subscriptions are kept and are replayed by the next `Subscribe` or `Publish`.
func (self *PubSubService) Disconnect() {
	self.supervisor.stop()
}

func (self *PubSubService) State() ConnectionState {
	return self.supervisor.State()
}

func (self *PubSubService) IsConnected() bool {
	return self.supervisor.ready.IsSet()
}

func (self *PubSubService) keysRemoved(removedKeys []string) {
	glog.V(LogLevelTrace).Infof("[ps]removed %v\n", removedKeys)
	if !self.supervisor.ready.IsSet() {
		return
	}
	for _, topic := range removedKeys {
		self.enqueue(&pubSubEnvelope{
			Type:  "unsubscribe",
			Topic: topic,
		})
	}
}

func (self *PubSubService) enqueue(envelope *pubSubEnvelope) error {
	message, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	select {
	case self.outbound <- &outboundEnvelope{envelopeType: envelope.Type, message: message}:
		return nil
	default:
		glog.Infof("[ps]outbound full, dropped %s %s\n", envelope.Type, envelope.Topic)
		return ErrOutboundFull
	}
}

// the socket url with the token as a query parameter.
// http schemes are translated to the matching ws schemes.
func (self *PubSubService) websocketUrl() string {
	query := map[string]any{}
	if self.identity.IsValid() {
		query["token"] = self.identity.Token()
	}
	return websocketScheme(self.api.BuildUrl(self.settings.Path, query))
}

func websocketScheme(u string) string {
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	case strings.HasPrefix(u, "wss://"), strings.HasPrefix(u, "ws://"):
		return u
	default:
		return "ws://" + strings.TrimLeft(u, "/")
	}
}

func (self *PubSubService) run(ctx context.Context) {
	reconnect := NewFixedBackoff(self.settings.ReconnectTimeout)
	for {
		self.supervisor.connecting()

		var ws *websocket.Conn
		var err error
		if glog.V(LogLevelTrace) {
			ws, err = TraceWithReturnError("[ps]connect", func() (*websocket.Conn, error) {
				return self.connect(ctx)
			})
		} else {
			ws, err = self.connect(ctx)
		}
		if err == nil {
			self.session(ctx, ws)
		} else if ctx.Err() == nil {
			glog.Infof("[ps]connect error = %s\n", err)
		}

		self.supervisor.disconnected()
		if self.supervisor.shouldExit() {
			return
		}
		if !reconnect.Wait(ctx) {
			return
		}
	}
}

func (self *PubSubService) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: self.settings.WsHandshakeTimeout,
	}
	ws, _, err := dialer.DialContext(ctx, self.websocketUrl(), http.Header{})
	return ws, err
}

// runs one socket until it fails or the service is stopped
func (self *PubSubService) session(ctx context.Context, ws *websocket.Conn) {
	sessionCtx, sessionCancel := context.WithCancel(ctx)
	defer sessionCancel()

	write := func(message []byte) error {
		ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
		return ws.WriteMessage(websocket.TextMessage, message)
	}

	var topics []string
	var publishes []*outboundEnvelope
	func() {
		self.sessionLock.Lock()
		defer self.sessionLock.Unlock()
		publishes = self.takePendingPublishes()
		self.supervisor.connected("")
		topics = self.subscriptions.keys()
	}()
	glog.V(LogLevelLifecycle).Infof("[ps]connected, replay %d topics, %d pending\n", len(topics), len(publishes))

	receive := make(chan []byte, self.settings.ReceiveBufferSize)
	go func() {
		defer close(receive)
		for {
			messageType, message, err := ws.ReadMessage()
			if err != nil {
				if sessionCtx.Err() == nil {
					glog.V(LogLevelLifecycle).Infof("[ps]read error = %s\n", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			select {
			case receive <- message:
			case <-sessionCtx.Done():
				return
			}
		}
	}()
	defer func() {
		// closing unblocks the reader
		ws.Close()
		for range receive {
		}
	}()

	replay := []*pubSubEnvelope{{Type: "hello"}}
	for _, topic := range topics {
		replay = append(replay, &pubSubEnvelope{
			Type:  "subscribe",
			Topic: topic,
		})
	}
	for _, envelope := range replay {
		message, err := json.Marshal(envelope)
		if err != nil {
			continue
		}
		if err := write(message); err != nil {
			glog.Infof("[ps]write error = %s\n", err)
			return
		}
	}
	for _, publish := range publishes {
		if err := write(publish.message); err != nil {
			glog.Infof("[ps]write error = %s\n", err)
			return
		}
	}

	for {
		select {
		case <-sessionCtx.Done():
			self.flush(write)
			ws.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(self.settings.WriteTimeout),
			)
			return
		case pending := <-self.outbound:
			if err := write(pending.message); err != nil {
				glog.Infof("[ps]write error = %s\n", err)
				return
			}
		case message, ok := <-receive:
			if !ok {
				return
			}
			self.handleMessage(message)
		}
	}
}

// writes whatever is queued without waiting for more
func (self *PubSubService) flush(write func([]byte) error) {
	for {
		select {
		case pending := <-self.outbound:
			if err := write(pending.message); err != nil {
				return
			}
		default:
			return
		}
	}
}

// empties the queue left by a previous socket. Subscription changes are dropped,
// since the replay sends the current topics. Publishes are returned in order.
func (self *PubSubService) takePendingPublishes() []*outboundEnvelope {
	publishes := []*outboundEnvelope{}
	for {
		select {
		case pending := <-self.outbound:
			if pending.envelopeType == "publish" {
				publishes = append(publishes, pending)
			}
		default:
			return publishes
		}
	}
}

func (self *PubSubService) handleMessage(message []byte) {
	pubSubMessage := parsePubSubEnvelope(message)
	if pubSubMessage.Topic == "" {
		glog.V(LogLevelTrace).Infof("[ps]message without topic\n")
		return
	}

	listeners := self.subscriptions.listenersFor(pubSubMessage.Topic)
	glog.V(LogLevelTrace).Infof("[ps]message %s -> %d listeners\n", pubSubMessage.Topic, len(listeners))
	dispatchListeners("ps", pubSubMessage.Topic, listeners, func(callback PubSubCallback) {
		callback(&PubSubMessage{
			Id:      pubSubMessage.Id,
			Topic:   pubSubMessage.Topic,
			Created: pubSubMessage.Created,
			Data:    cloneJson(pubSubMessage.Data),
		})
	})
}

// a malformed frame is treated as an empty object
func parsePubSubEnvelope(message []byte) *PubSubMessage {
	var envelope map[string]any
	if err := json.Unmarshal(message, &envelope); err != nil || envelope == nil {
		envelope = map[string]any{}
	}
	stringField := func(name string) string {
		if v, ok := envelope[name].(string); ok {
			return v
		}
		return ""
	}
	return &PubSubMessage{
		Id:      stringField("id"),
		Topic:   stringField("topic"),
		Created: stringField("created"),
		Data:    envelope["data"],
	}
}
