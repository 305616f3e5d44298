package bosbase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
)

const DefaultLang = "en-US"
const DefaultUserAgent = "bosbase-go-sdk/0.1.0"

type ClientSettings struct {
	Lang               string
	UserAgent          string
	HttpTimeout        time.Duration
	HttpConnectTimeout time.Duration
	HttpTlsTimeout     time.Duration

	RealtimeSettings *RealtimeSettings
	PubSubSettings   *PubSubSettings
}

func DefaultClientSettings() *ClientSettings {
	return &ClientSettings{
		Lang:               DefaultLang,
		UserAgent:          DefaultUserAgent,
		HttpTimeout:        defaultHttpTimeout,
		HttpConnectTimeout: defaultHttpConnectTimeout,
		HttpTlsTimeout:     defaultHttpTlsTimeout,
		RealtimeSettings:   DefaultRealtimeSettings(),
		PubSubSettings:     DefaultPubSubSettings(),
	}
}

// Client sends requests to one backend and owns one instance of each live-update transport.
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc

	baseUrl  string
	settings *ClientSettings

	authStore *AuthStore

	httpClient   *http.Client
	streamClient *http.Client

	hookLock   sync.Mutex
	beforeSend BeforeSendFunction
	afterSend  AfterSendFunction

	Realtime *RealtimeService
	PubSub   *PubSubService
}

func NewClientWithDefaults(ctx context.Context, baseUrl string) *Client {
	return NewClient(ctx, baseUrl, NewAuthStore(), DefaultClientSettings())
}

func NewClient(ctx context.Context, baseUrl string, authStore *AuthStore, settings *ClientSettings) *Client {
	cancelCtx, cancel := context.WithCancel(ctx)

	if baseUrl == "" {
		baseUrl = "/"
	}

	client := &Client{
		ctx:          cancelCtx,
		cancel:       cancel,
		baseUrl:      baseUrl,
		settings:     settings,
		authStore:    authStore,
		httpClient:   defaultClient(settings),
		streamClient: defaultStreamClient(settings),
	}
	client.Realtime = NewRealtimeService(cancelCtx, client, authStore, settings.RealtimeSettings)
	client.PubSub = NewPubSubService(cancelCtx, client, authStore, settings.PubSubSettings)
	return client
}

func (self *Client) BaseUrl() string {
	return self.baseUrl
}

func (self *Client) AuthStore() *AuthStore {
	return self.authStore
}

// record subscriptions scoped to one collection
func (self *Client) Collection(collectionIdOrName string) *RecordService {
	return NewRecordService(self.Realtime, collectionIdOrName)
}

func (self *Client) SetBeforeSend(beforeSend BeforeSendFunction) {
	self.hookLock.Lock()
	defer self.hookLock.Unlock()
	self.beforeSend = beforeSend
}

func (self *Client) SetAfterSend(afterSend AfterSendFunction) {
	self.hookLock.Lock()
	defer self.hookLock.Unlock()
	self.afterSend = afterSend
}

func (self *Client) hooks() (BeforeSendFunction, AfterSendFunction) {
	self.hookLock.Lock()
	defer self.hookLock.Unlock()
	return self.beforeSend, self.afterSend
}

// joins the base url and `path`, and encodes `query`.
// Nil query values are skipped, lists become repeated parameters,
// and non string scalars are encoded as json.
func (self *Client) BuildUrl(path string, query map[string]any) string {
	base := self.baseUrl
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u := base + strings.TrimLeft(path, "/")
	if encodedQuery := encodeQuery(query); encodedQuery != "" {
		u += "?" + encodedQuery
	}
	return u
}

func encodeQuery(query map[string]any) string {
	values := url.Values{}
	for key, value := range query {
		switch v := value.(type) {
		case nil:
		case []any:
			for _, item := range v {
				if item != nil {
					values.Add(key, queryValue(item))
				}
			}
		case []string:
			for _, item := range v {
				values.Add(key, item)
			}
		default:
			values.Add(key, queryValue(v))
		}
	}
	return strings.ReplaceAll(values.Encode(), "+", "%20")
}

func queryValue(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	valueBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(valueBytes)
}

func (self *Client) setDefaultHeaders(header http.Header) {
	if header.Get("Accept-Language") == "" {
		header.Set("Accept-Language", self.settings.Lang)
	}
	if header.Get("User-Agent") == "" {
		header.Set("User-Agent", self.settings.UserAgent)
	}
	if header.Get("Authorization") == "" && self.authStore.IsValid() {
		header.Set("Authorization", self.authStore.Token())
	}
}

func (self *Client) Send(ctx context.Context, path string, options *SendOptions) (any, error) {
	if options == nil {
		options = &SendOptions{}
	}
	method := options.Method
	if method == "" {
		method = http.MethodGet
	}
	if 0 < options.Timeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	u := self.BuildUrl(path, options.Query)

	var body io.Reader
	jsonBody := false
	switch v := options.Body.(type) {
	case nil:
	case io.Reader:
		body = v
	default:
		bodyBytes, err := json.Marshal(v)
		if err != nil {
			return nil, &ResponseError{Url: u, Err: err}
		}
		body = bytes.NewReader(bodyBytes)
		jsonBody = true
	}

	request, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, &ResponseError{Url: u, Err: err}
	}
	for key, value := range options.Headers {
		request.Header.Set(key, value)
	}
	if jsonBody && request.Header.Get("Content-Type") == "" {
		request.Header.Set("Content-Type", "application/json")
	}
	self.setDefaultHeaders(request.Header)

	beforeSend, afterSend := self.hooks()
	if beforeSend != nil {
		if err := beforeSend(request); err != nil {
			return nil, &ResponseError{Url: u, IsAbort: true, Err: err}
		}
	}

	response, err := self.httpClient.Do(request)
	if err != nil {
		return nil, &ResponseError{
			Url:     u,
			IsAbort: errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded),
			Err:     err,
		}
	}
	defer response.Body.Close()

	responseBodyBytes, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, &ResponseError{Url: u, Status: response.StatusCode, Err: err}
	}
	data := parseResponseBody(responseBodyBytes)

	if afterSend != nil {
		data, err = afterSend(response, data)
		if err != nil {
			return nil, &ResponseError{Url: u, Status: response.StatusCode, Response: data, Err: err}
		}
	}

	if 400 <= response.StatusCode {
		return nil, &ResponseError{Url: u, Status: response.StatusCode, Response: data}
	}
	return data, nil
}

// json when possible, otherwise the body as a string. An empty body is nil.
func parseResponseBody(responseBodyBytes []byte) any {
	if len(bytes.TrimSpace(responseBodyBytes)) == 0 {
		return nil
	}
	var data any
	if err := json.Unmarshal(responseBodyBytes, &data); err != nil {
		return string(responseBodyBytes)
	}
	return data
}

func (self *Client) OpenStream(ctx context.Context, path string, headers map[string]string) (io.ReadCloser, error) {
	u := self.BuildUrl(path, nil)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &ResponseError{Url: u, Err: err}
	}
	for key, value := range headers {
		request.Header.Set(key, value)
	}
	self.setDefaultHeaders(request.Header)

	response, err := self.streamClient.Do(request)
	if err != nil {
		return nil, &ResponseError{
			Url:     u,
			IsAbort: errors.Is(err, context.Canceled),
			Err:     err,
		}
	}
	// a stream without content is not open
	if response.StatusCode < 200 || 300 <= response.StatusCode || response.StatusCode == http.StatusNoContent {
		defer response.Body.Close()
		// the error body is short
		responseBodyBytes, _ := io.ReadAll(io.LimitReader(response.Body, 64*1024))
		return nil, &ResponseError{
			Url:      u,
			Status:   response.StatusCode,
			Response: parseResponseBody(responseBodyBytes),
		}
	}
	return response.Body, nil
}

// disconnects both transports and releases idle connections
func (self *Client) Close() {
	self.Realtime.Disconnect()
	self.PubSub.Disconnect()
	self.cancel()
	self.httpClient.CloseIdleConnections()
	self.streamClient.CloseIdleConnections()
	glog.V(LogLevelTrace).Infof("[c]closed %s\n", self.baseUrl)
}
