package todoist

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestNewState(t *testing.T) {
	seen := make(map[string]bool)
	for range 200 {
		state, err := NewState()
		require.NoError(t, err)
		require.Len(t, state, StateLength)
		for _, r := range state {
			require.True(t, r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), "unexpected character %q in %q", r, state)
		}
		require.False(t, seen[state], "duplicate state %q", state)
		seen[state] = true
	}
}

func TestParseScope(t *testing.T) {
	scope, ok := ParseScope("data:read_write")
	require.True(t, ok)
	assert.Equal(t, ScopeDataReadWrite, scope)

	_, ok = ParseScope("data:everything")
	assert.False(t, ok)
}

func TestAuthorizationURL(t *testing.T) {
	client := NewClient("client-123", "secret", []PermissionScope{ScopeTaskAdd, ScopeDataRead})

	raw := client.AuthorizationURL("abcdefghijklmnopqrstuvwx")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "https", u.Scheme)
	assert.Equal(t, "todoist.com", u.Host)
	assert.Equal(t, "/oauth/authorize", u.Path)

	query := u.Query()
	assert.Equal(t, "client-123", query.Get("client_id"))
	assert.Equal(t, "task:add,data:read", query.Get("scope"))
	assert.Equal(t, "abcdefghijklmnopqrstuvwx", query.Get("state"))
	assert.Empty(t, query.Get("client_secret"))
}

// tokenServer fakes Todoist's token endpoint and records the last form it received.
func tokenServer(t *testing.T, status int, body string) (*httptest.Server, *url.Values) {
	t.Helper()
	received := &url.Values{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.NoError(t, r.ParseForm())
		*received = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, received
}

func testEndpoint(server *httptest.Server) oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   server.URL + "/oauth/authorize",
		TokenURL:  server.URL + "/oauth/access_token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

func TestExchange(t *testing.T) {
	server, received := tokenServer(t, http.StatusOK, `{"access_token":"tok-1","token_type":"Bearer"}`)
	client := NewClient("client-123", "s3cret", DefaultScopes,
		WithEndpoint(testEndpoint(server)),
		WithRedirectURL("capturist://oauth"),
	)

	token, err := client.Exchange(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	assert.Equal(t, url.Values{
		"client_id":     {"client-123"},
		"client_secret": {"s3cret"},
		"code":          {"good"},
	}, *received)
}

func TestExchangeFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "rejected code", status: http.StatusBadRequest, body: `{"error":"invalid_grant"}`},
		{name: "missing access token", status: http.StatusOK, body: `{"token_type":"Bearer"}`},
		{name: "malformed body", status: http.StatusOK, body: `{"access_token":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := tokenServer(t, tt.status, tt.body)
			client := NewClient("client-123", "s3cret", DefaultScopes, WithEndpoint(testEndpoint(server)))

			_, err := client.Exchange(context.Background(), "bad")
			require.Error(t, err)
		})
	}
}

func TestExchangeTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(server.Close)

	client := NewClient("client-123", "s3cret", DefaultScopes,
		WithEndpoint(testEndpoint(server)),
		WithTimeout(50*time.Millisecond),
	)

	_, err := client.Exchange(context.Background(), "slow")
	require.Error(t, err)
}
