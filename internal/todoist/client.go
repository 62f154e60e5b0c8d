package todoist

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

// DefaultTimeout bounds a single token exchange request.
const DefaultTimeout = 30 * time.Second

const tracerName = "github.com/capturist/capturist/internal/todoist"

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

// clientConfig holds configuration for NewClient.
type clientConfig struct {
	endpoint      oauth2.Endpoint
	redirectURL   string
	baseTransport http.RoundTripper
	timeout       time.Duration
}

// WithEndpoint overrides the Todoist OAuth endpoints (used against test servers).
func WithEndpoint(endpoint oauth2.Endpoint) ClientOption {
	return func(c *clientConfig) {
		c.endpoint = endpoint
	}
}

// WithRedirectURL sets the redirect_uri sent with the authorization request.
// If not provided, Todoist uses the redirect URL registered for the client.
func WithRedirectURL(redirectURL string) ClientOption {
	return func(c *clientConfig) {
		c.redirectURL = redirectURL
	}
}

// WithTransport sets a custom base transport for token exchange requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *clientConfig) {
		c.baseTransport = transport
	}
}

// WithTimeout sets the request timeout for token exchange. Defaults to DefaultTimeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// Client builds authorization URLs and exchanges authorization codes for access tokens.
type Client struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewClient creates a Client for the given application credentials and scopes.
func NewClient(clientID, clientSecret string, scopes []PermissionScope, opts ...ClientOption) *Client {
	cfg := &clientConfig{
		endpoint:      Endpoint,
		baseTransport: http.DefaultTransport,
		timeout:       DefaultTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	names := make([]string, len(scopes))
	for i, scope := range scopes {
		names[i] = string(scope)
	}

	oauth2Config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  cfg.redirectURL,
		// Todoist expects a single comma-separated scope parameter
		Scopes:   []string{strings.Join(names, ",")},
		Endpoint: cfg.endpoint,
	}

	return &Client{
		config: oauth2Config,
		httpClient: &http.Client{
			Timeout: cfg.timeout,
			Transport: &exchangeTransport{
				base: cfg.baseTransport,
			},
		},
	}
}

// AuthorizationURL returns the URL the user opens to grant access. state is echoed
// back on the callback.
func (c *Client) AuthorizationURL(state string) string {
	return c.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for an access token.
func (c *Client) Exchange(ctx context.Context, code string) (string, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "todoist.exchange",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("oauth.token_url", c.config.Endpoint.TokenURL)),
	)
	defer span.End()

	// oauth2 picks up the HTTP client from the context (oauth2.HTTPClient key)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	token, err := c.config.Exchange(ctx, code)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token exchange failed")
		return "", err
	}

	span.SetAttributes(attribute.String("oauth.token_type", token.Type()))
	return token.AccessToken, nil
}

// exchangeFields are the form fields Todoist's token endpoint documents.
var exchangeFields = []string{"client_id", "client_secret", "code"}

// exchangeTransport trims oauth2's form-encoded token request down to the fields
// documented by Todoist (oauth2 also sends grant_type and redirect_uri).
// The oauth2 package guarantees this transport only receives token endpoint requests.
type exchangeTransport struct {
	base http.RoundTripper
}

// Compile-time check that exchangeTransport implements http.RoundTripper.
var _ http.RoundTripper = (*exchangeTransport)(nil)

// RoundTrip rewrites the token request body to contain only exchangeFields.
func (t *exchangeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Defer close since we consume the body entirely and create a new body for the cloned request.
	defer func() { _ = req.Body.Close() }()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}

	formData, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("parsing form data: %w", err)
	}

	trimmed := url.Values{}
	for _, key := range exchangeFields {
		if value := formData.Get(key); value != "" {
			trimmed.Set(key, value)
		}
	}
	encoded := trimmed.Encode()

	newReq := req.Clone(req.Context())
	newReq.Body = io.NopCloser(strings.NewReader(encoded))
	newReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(encoded)), nil
	}
	newReq.ContentLength = int64(len(encoded))
	newReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return t.base.RoundTrip(newReq)
}
