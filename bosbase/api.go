package bosbase

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"
)

const defaultHttpTimeout = 30 * time.Second
const defaultHttpConnectTimeout = 5 * time.Second
const defaultHttpTlsTimeout = 5 * time.Second

// Api is the http capability the live-update transports depend on.
type Api interface {
	BuildUrl(path string, query map[string]any) string
	// sends a request and returns the parsed json response
	Send(ctx context.Context, path string, options *SendOptions) (any, error)
	// opens a long lived GET request and returns the response body.
	// The stream ends when `ctx` is done or the server closes it.
	OpenStream(ctx context.Context, path string, headers map[string]string) (io.ReadCloser, error)
}

type SendOptions struct {
	// defaults to GET
	Method  string
	Headers map[string]string
	Query   map[string]any
	// an `io.Reader` is sent as is, anything else is encoded as json
	Body any
	// per request timeout in addition to the client timeout
	Timeout time.Duration
}

// called before each request is sent. The request can be modified.
// Returning an error aborts the send.
type BeforeSendFunction func(request *http.Request) error

// called with each parsed response, including error responses.
// The returned value replaces the parsed response.
type AfterSendFunction func(response *http.Response, data any) (any, error)

func defaultTransport(settings *ClientSettings) *http.Transport {
	// see https://medium.com/@nate510/don-t-use-go-s-default-http-client-4804cb19f779
	dialer := &net.Dialer{
		Timeout: settings.HttpConnectTimeout,
	}
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: settings.HttpTlsTimeout,
	}
}

func defaultClient(settings *ClientSettings) *http.Client {
	return &http.Client{
		Transport: defaultTransport(settings),
		Timeout:   settings.HttpTimeout,
	}
}

// streams are bounded by their context, not by a client timeout
func defaultStreamClient(settings *ClientSettings) *http.Client {
	return &http.Client{
		Transport: defaultTransport(settings),
	}
}
