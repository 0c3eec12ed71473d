package recognize

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultSOAPEndpoint serves account and image management calls.
	DefaultSOAPEndpoint = "http://clapi.itraff.pl/"
	// DefaultRecognizeEndpoint is the base of the recognition URLs.
	DefaultRecognizeEndpoint = "http://recognize.im/v2/recognize/"
	// DefaultTimeout bounds every request when no deadline is set on the context.
	DefaultTimeout = 30 * time.Second
)

// Client talks to the recognize.im API. It is safe for concurrent use.
type Client struct {
	http              *resty.Client
	logger            *zap.Logger
	soapEndpoint      string
	recognizeEndpoint string
	checkLimits       bool
	session           atomic.Pointer[Session]
}

type options struct {
	logger            *zap.Logger
	timeout           time.Duration
	soapEndpoint      string
	recognizeEndpoint string
	httpClient        *http.Client
	checkLimits       bool
}

// Option configures a Client.
type Option func(*options)

// WithLogger sets the logger used for request tracing and failures.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithSOAPEndpoint overrides the SOAP endpoint URL.
func WithSOAPEndpoint(url string) Option {
	return func(o *options) {
		if url != "" {
			o.soapEndpoint = url
		}
	}
}

// WithRecognizeEndpoint overrides the base URL of the recognition endpoint.
func WithRecognizeEndpoint(url string) Option {
	return func(o *options) {
		if url != "" {
			o.recognizeEndpoint = url
		}
	}
}

// WithHTTPClient sets the HTTP client whose transport carries every request.
// The client is copied; the copy has no cookie jar since cookies travel
// through the Session.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

// WithImageLimits toggles local validation of query images before upload.
func WithImageLimits(enabled bool) Option {
	return func(o *options) {
		o.checkLimits = enabled
	}
}

// New builds a client and authenticates it. The returned client carries the
// session cookies set by the service.
func New(ctx context.Context, clientID, apiKey, clapiKey string, opts ...Option) (*Client, error) {
	c := newClient(clientID, apiKey, clapiKey, opts...)
	if _, err := c.Auth(ctx, clientID, clapiKey); err != nil {
		return nil, err
	}
	return c, nil
}

func newClient(clientID, apiKey, clapiKey string, opts ...Option) *Client {
	o := options{
		logger:            zap.NewNop(),
		timeout:           DefaultTimeout,
		soapEndpoint:      DefaultSOAPEndpoint,
		recognizeEndpoint: DefaultRecognizeEndpoint,
		checkLimits:       true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var rc *resty.Client
	if o.httpClient != nil {
		hc := *o.httpClient
		rc = resty.NewWithClient(&hc)
	} else {
		rc = resty.New()
	}
	rc.SetCookieJar(nil).
		SetTimeout(o.timeout).
		SetLogger(o.logger.Sugar())

	endpoint := o.recognizeEndpoint
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}

	c := &Client{
		http:              rc,
		logger:            o.logger.Named("recognize"),
		soapEndpoint:      o.soapEndpoint,
		recognizeEndpoint: endpoint,
		checkLimits:       o.checkLimits,
	}
	c.session.Store(&Session{ClientID: clientID, APIKey: apiKey, ClapiKey: clapiKey})
	return c
}

// Session returns the current session value.
func (c *Client) Session() *Session {
	return c.session.Load()
}

func (c *Client) storeCookies(cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	for {
		current := c.session.Load()
		if c.session.CompareAndSwap(current, current.withCookies(cookies)) {
			return
		}
	}
}

func (c *Client) operationLogger(operation string) (*zap.Logger, string) {
	requestID := uuid.NewString()
	return c.logger.With(zap.String("operation", operation), zap.String("request_id", requestID)), requestID
}

// call performs one SOAP round trip.
func (c *Client) call(ctx context.Context, operation string, fields ...field) (Response, error) {
	logger, requestID := c.operationLogger(operation)

	body, err := buildEnvelope(operation, fields)
	if err != nil {
		wrapped := newOperationError(operation, requestID, nil, err)
		logger.Error("failed to encode soap request", zap.Error(wrapped))
		return nil, wrapped
	}

	session := c.session.Load()
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("SOAPAction", soapAction(operation)).
		SetHeader("Content-Type", `text/xml; charset="utf-8"`).
		SetHeader("Accept", "text/xml").
		SetCookies(session.Cookies()).
		SetBody(body).
		Post(c.soapEndpoint)
	if err != nil {
		wrapped := newOperationError(operation, requestID, ErrTransport, err)
		logger.Error("soap request failed", zap.Error(wrapped))
		return nil, wrapped
	}
	c.storeCookies(resp.Cookies())

	if !resp.IsSuccess() {
		statusErr := &StatusError{StatusCode: resp.StatusCode(), Fault: parseFault(resp.Body())}
		wrapped := newOperationError(operation, requestID, ErrTransport, statusErr)
		logger.Error("soap request rejected", zap.Error(wrapped), zap.Int("status", resp.StatusCode()))
		return nil, wrapped
	}

	out, err := parseResponse(resp.Body())
	if err != nil {
		wrapped := newOperationError(operation, requestID, ErrMalformedResponse, err)
		logger.Error("failed to decode soap response", zap.Error(wrapped))
		return nil, wrapped
	}

	logger.Debug("soap call completed", zap.Int("status", resp.StatusCode()), zap.Int("fields", len(out)))
	return out, nil
}
