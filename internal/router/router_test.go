package router

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/repo"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newTestServer(t *testing.T) (*httptest.Server, *clock) {
	t.Helper()
	c := &clock{t: time.Now()}
	tokens, err := token.NewService(token.Config{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
	}, token.WithClock(c.Now))
	require.NoError(t, err)

	logger := zap.NewNop().Sugar()
	svc := user.NewSessionService(userrepo.NewMemoryRepo(), tokens, user.BcryptHasher{Cost: bcrypt.MinCost})
	h := RegisterRoutes(Deps{
		Logger:   logger,
		Users:    user.NewHandler(svc, logger, user.CookieConfig{Path: "/auth", Secure: true}),
		Gate:     auth.Authenticate(tokens, logger),
		Registry: prometheus.NewRegistry(),
	})
	srv := httptest.NewTLSServer(h)
	t.Cleanup(srv.Close)
	return srv, c
}

func newClient(t *testing.T, srv *httptest.Server) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := srv.Client()
	client.Jar = jar
	return client
}

type envelope struct {
	Success     bool            `json:"success"`
	Message     string          `json:"message"`
	AccessToken string          `json:"accessToken"`
	Data        json.RawMessage `json:"data"`
}

func send(t *testing.T, client *http.Client, method, u, body, bearer string) (*http.Response, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, u, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env envelope
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp, env
}

func TestSessionLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	client := newClient(t, srv)

	resp, env := send(t, client, http.MethodPost, srv.URL+"/auth/signup", `{"name":"A","email":"a@x.com","password":"pw"}`, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, env.Success)

	resp, env = send(t, client, http.MethodPost, srv.URL+"/auth/login", `{"email":"a@x.com","password":"pw"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, env.AccessToken)
	access := env.AccessToken

	authURL, _ := url.Parse(srv.URL + "/auth/refresh")
	require.Len(t, client.Jar.Cookies(authURL), 1)

	resp, env = send(t, client, http.MethodGet, srv.URL+"/auth/", "", access)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me struct {
		UserID string `json:"userId"`
		Name   string `json:"name"`
		Email  string `json:"email"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.NotEmpty(t, me.UserID)
	assert.Equal(t, "A", me.Name)
	assert.Equal(t, "a@x.com", me.Email)

	resp, env = send(t, client, http.MethodPost, srv.URL+"/auth/refresh", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, env.AccessToken)

	resp, _ = send(t, client, http.MethodDelete, srv.URL+"/auth/logout", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, client.Jar.Cookies(authURL))

	resp, env = send(t, client, http.MethodPost, srv.URL+"/auth/refresh", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, env.Success)
}

func TestGate_ExpiredAccessToken(t *testing.T) {
	srv, c := newTestServer(t)
	client := newClient(t, srv)

	send(t, client, http.MethodPost, srv.URL+"/auth/signup", `{"name":"A","email":"a@x.com","password":"pw"}`, "")
	_, env := send(t, client, http.MethodPost, srv.URL+"/auth/login", `{"email":"a@x.com","password":"pw"}`, "")

	c.t = c.t.Add(time.Minute + time.Second)
	resp, _ := send(t, client, http.MethodGet, srv.URL+"/auth/", "", env.AccessToken)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = send(t, client, http.MethodGet, srv.URL+"/auth/", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRoutes_Ambient(t *testing.T) {
	srv, _ := newTestServer(t)
	client := srv.Client()

	resp, err := client.Get(srv.URL + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "JWT based authentication")
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("Strict-Transport-Security"))

	resp, err = client.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "pitchfork_auth_http_requests_total")

	// wrong method on a known path
	resp, err = client.Get(srv.URL + "/auth/login")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	h := CORSMiddleware("http://app.local")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "http://app.local")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://app.local", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "36000", rec.Header().Get("Access-Control-Max-Age"))

	req = httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.Header.Set("Origin", "http://evil.local")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestID_PreservesCallerValue(t *testing.T) {
	var seen string
	h := RequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}
