package api

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/npezzotti/go-dmchat/internal/config"
	"github.com/npezzotti/go-dmchat/internal/testutil"
	"github.com/npezzotti/go-dmchat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHandler_PanicRecovery(t *testing.T) {
	logger, buf := testutil.BufferLogger(t)
	app := &DMChatApp{log: logger}

	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("test panic"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	app.errorHandler(panicHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "close", rr.Header().Get("Connection"))
	assert.JSONEq(t, `{"status_code":500,"message":"internal server error"}`, rr.Body.String())
	assert.Contains(t, buf.String(), "panic: GET /: test panic")
}

func TestErrorHandler_PanicValues(t *testing.T) {
	tcases := []struct {
		name     string
		handler  http.HandlerFunc
		code     int
		body     string
		expected string
	}{
		{
			name:     "non error value",
			handler:  func(w http.ResponseWriter, r *http.Request) { panic(42) },
			code:     http.StatusInternalServerError,
			body:     `{"status_code":500,"message":"internal server error"}`,
			expected: "panic: GET /api/users: 42",
		},
		{
			name: "after the response started",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusAccepted)
				panic("late")
			},
			code:     http.StatusAccepted,
			expected: "panic: GET /api/users: late",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			logger, buf := testutil.BufferLogger(t)
			app := &DMChatApp{log: logger}

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
			app.errorHandler(tc.handler).ServeHTTP(rr, req)

			assert.Equal(t, tc.code, rr.Code)
			if tc.body != "" {
				assert.JSONEq(t, tc.body, rr.Body.String())
			} else {
				assert.Empty(t, rr.Body.String(), "expected no error body once the response started")
			}
			assert.Contains(t, buf.String(), tc.expected)
		})
	}
}

func TestErrorHandler_abortHandler(t *testing.T) {
	app := &DMChatApp{log: testutil.TestLogger(t)}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	})

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		app.errorHandler(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

// hijackRecorder is a ResponseRecorder whose connection can be taken over.
type hijackRecorder struct {
	*httptest.ResponseRecorder
	conn net.Conn
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return h.conn, bufio.NewReadWriter(bufio.NewReader(h.conn), bufio.NewWriter(h.conn)), nil
}

func TestErrorHandler_hijackedConnection(t *testing.T) {
	logger, buf := testutil.BufferLogger(t)
	app := &DMChatApp{log: logger}

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	rr := &hijackRecorder{ResponseRecorder: httptest.NewRecorder(), conn: server}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := w.(http.Hijacker)
		require.True(t, ok, "expected the wrapped writer to support hijacking")
		conn, _, err := h.Hijack()
		require.NoError(t, err)
		assert.Equal(t, server, conn)
		panic("after upgrade")
	})

	app.errorHandler(handler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws/presence", nil))

	assert.Empty(t, rr.Body.String(), "expected nothing written to a hijacked connection")
	assert.Empty(t, rr.Header().Get("Connection"))
	assert.Contains(t, buf.String(), "panic: GET /ws/presence: after upgrade")
}

func Test_trackingWriter_noHijacker(t *testing.T) {
	tw := &trackingWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := tw.Hijack()
	assert.Error(t, err)
	assert.False(t, tw.hijacked)
}

func Test_errorHandler_NoPanic(t *testing.T) {
	app := &DMChatApp{}

	called := false
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	app.errorHandler(okHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.True(t, called, "expected handler to be called")
}

func Test_authMiddleware(t *testing.T) {
	logger, buf := testutil.BufferLogger(t)
	app := NewDMChatApp(http.NewServeMux(), logger, nil, nil, &config.Config{
		SigningKey: []byte("test-signing-key"),
	})

	tokenHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userId, ok := UserId(r.Context())
		if !ok || userId != 1 {
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := app.createJwtForSession(types.User{Id: 1, Username: "test"}, defaultJwtExpiration)
		require.NoError(t, err, "failed to create jwt token")

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(createJwtCookie(token, defaultJwtExpiration))
		app.authMiddleware(tokenHandler).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "ok", rr.Body.String())
		assert.Equal(t, "no-store, no-cache, must-revalidate, private", rr.Header().Get("Cache-Control"))
	})

	t.Run("missing token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		app.authMiddleware(tokenHandler).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.NotContains(t, buf.String(), "failed to extract user id", "expected a missing cookie not to be logged")
	})

	t.Run("invalid token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ws/presence", nil)
		req.AddCookie(&http.Cookie{
			Name:  tokenCookieKey,
			Value: "invalid-token",
		})
		app.authMiddleware(tokenHandler).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, buf.String(), "failed to extract user id from token on /ws/presence")
	})
}
