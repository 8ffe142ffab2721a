// Package ws provides a fake Chromium remote debugging endpoint for tests.
package ws

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
)

// Server is an httptest server running a fake Browser.
type Server struct {
	t testing.TB

	Browser       *Browser
	ServerHTTP    *httptest.Server
	HTTPTransport *http.Transport
	Client        *http.Client
	Context       context.Context
}

// NewServer starts a fake browser and stops it when the test ends.
func NewServer(t testing.TB, opts ...BrowserOption) *Server {
	t.Helper()

	b := NewBrowser(opts...)
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(srv.Close)

	transport, ok := srv.Client().Transport.(*http.Transport)
	require.True(t, ok)
	require.NoError(t, http2.ConfigureTransport(transport))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return &Server{
		t:             t,
		Browser:       b,
		ServerHTTP:    srv,
		HTTPTransport: transport,
		Client:        &http.Client{Transport: transport},
		Context:       ctx,
	}
}

// URL returns the base HTTP URL of the fake.
func (s *Server) URL() string {
	return s.ServerHTTP.URL
}

// Port returns the port the fake listens on.
func (s *Server) Port() int {
	u, err := url.Parse(s.ServerHTTP.URL)
	require.NoError(s.t, err)
	_, port, err := net.SplitHostPort(u.Host)
	require.NoError(s.t, err)
	p, err := strconv.Atoi(port)
	require.NoError(s.t, err)
	return p
}

// WebSocketURL returns the CDP endpoint of the tab with the given id.
func (s *Server) WebSocketURL(tabID string) string {
	u, err := url.Parse(s.ServerHTTP.URL)
	require.NoError(s.t, err)
	return "ws://" + u.Host + "/devtools/page/" + tabID
}

// Tab adds a page tab with the given url and returns it.
func (s *Server) Tab(rawURL string) Tab {
	t := Tab{ID: newID(), Type: "page", URL: rawURL}
	s.Browser.mu.Lock()
	s.Browser.tabs = append(s.Browser.tabs, t)
	s.Browser.mu.Unlock()
	return t
}
