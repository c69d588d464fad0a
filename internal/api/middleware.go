package api

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// trackingWriter records whether a response was started or the connection
// taken over by a WebSocket upgrade.
type trackingWriter struct {
	http.ResponseWriter
	wroteHeader bool
	hijacked    bool
}

func (tw *trackingWriter) WriteHeader(code int) {
	tw.wroteHeader = true
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *trackingWriter) Write(b []byte) (int, error) {
	tw.wroteHeader = true
	return tw.ResponseWriter.Write(b)
}

func (tw *trackingWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := tw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response does not support hijacking")
	}
	conn, rw, err := h.Hijack()
	if err == nil {
		tw.hijacked = true
	}
	return conn, rw, err
}

func (tw *trackingWriter) Unwrap() http.ResponseWriter {
	return tw.ResponseWriter
}

// recoveredError converts a value returned by recover into an error.
func recoveredError(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	return fmt.Errorf("%v", v)
}

// errorHandler turns a panicking handler into a 500 response. Nothing is
// written once the handler has started its response or upgraded the
// connection.
func (s *DMChatApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tw := &trackingWriter{ResponseWriter: w}
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}

			err := recoveredError(v)
			s.log.Printf("panic: %s %s: %v", r.Method, r.URL.Path, err)
			if tw.hijacked || tw.wroteHeader {
				return
			}
			w.Header().Set("Connection", "close")
			s.writeError(w, NewInternalServerError(err))
		}()

		next.ServeHTTP(tw, r)
	})
}

// sessionUserId returns the user id carried by the request's session cookie.
func (s *DMChatApp) sessionUserId(r *http.Request) (int, error) {
	tokenCookie, err := r.Cookie(tokenCookieKey)
	if err != nil {
		return 0, err
	}
	return s.extractUserIdFromToken(tokenCookie.Value)
}

// authMiddleware rejects requests without a valid session. It guards both
// the JSON API and the WebSocket endpoints, which browsers open with the
// same cookie.
func (s *DMChatApp) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userId, err := s.sessionUserId(r)
		if err != nil {
			if !errors.Is(err, http.ErrNoCookie) {
				s.log.Printf("failed to extract user id from token on %s: %v", r.URL.Path, err)
			}
			s.writeError(w, NewUnauthorizedError())
			return
		}

		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		next(w, r.WithContext(WithUserId(r.Context(), userId)))
	}
}
