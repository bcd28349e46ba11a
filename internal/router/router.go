package router

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/book"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-Id"

const maxRequestIDLen = 64

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

type ctxKey struct{}

// RequestIDFromContext returns the id assigned by RequestIDMiddleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// RequestIDMiddleware keeps a caller supplied X-Request-Id or assigns a KSUID.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
			if id == "" || len(id) > maxRequestIDLen {
				id = ksuid.New().String()
			}
			w.Header().Set(HeaderRequestID, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
		})
	}
}

// LoggingMiddleware returns a middleware that logs requests at debug level using the provided sugared logger.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"request_id", RequestIDFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware returns a middleware that sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			// JSON only; nothing should ever be loaded by a browser from these responses
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none';")
			}
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Pinger reports database reachability for the health endpoint.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the handlers and services the router mounts.
type Deps struct {
	Logger *zap.SugaredLogger
	DB     Pinger
	Auth   *auth.Authenticator
	Users  *user.Handler
	Books  *book.Handler
}

// RegisterRoutes mounts every endpoint on a http.ServeMux. Each path answers
// with and without its trailing slash.
func RegisterRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()
	protect := d.Auth.Require

	mount(mux, "GET", "/health", healthHandler(d.DB, d.Logger))

	// users
	mount(mux, "POST", "/users/", http.HandlerFunc(d.Users.Signup))
	mount(mux, "", "/users/", methodNotAllowed("POST"))
	mount(mux, "POST", "/users/token/", http.HandlerFunc(d.Users.Token))
	mount(mux, "", "/users/token/", methodNotAllowed("POST"))
	mount(mux, "GET", "/users/me/", protect(http.HandlerFunc(d.Users.Me)))
	mount(mux, "", "/users/me/", protect(methodNotAllowed("GET", "HEAD")))
	mount(mux, "POST", "/users/logout/", protect(http.HandlerFunc(d.Users.Logout)))
	mount(mux, "", "/users/logout/", protect(methodNotAllowed("POST")))

	// books
	mount(mux, "GET", "/books/", protect(http.HandlerFunc(d.Books.List)))
	mount(mux, "POST", "/books/", protect(http.HandlerFunc(d.Books.Create)))
	mount(mux, "", "/books/", protect(methodNotAllowed("GET", "HEAD", "POST")))
	mount(mux, "GET", "/books/{id}/", protect(http.HandlerFunc(d.Books.Retrieve)))
	mount(mux, "PUT", "/books/{id}/", protect(http.HandlerFunc(d.Books.Update)))
	mount(mux, "PATCH", "/books/{id}/", protect(http.HandlerFunc(d.Books.PartialUpdate)))
	mount(mux, "DELETE", "/books/{id}/", protect(http.HandlerFunc(d.Books.Delete)))
	mount(mux, "", "/books/{id}/", protect(methodNotAllowed("GET", "HEAD", "PUT", "PATCH", "DELETE")))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		utilities.WriteDetail(w, http.StatusNotFound, book.MsgNotFound)
	})

	return RequestIDMiddleware()(LoggingMiddleware(d.Logger)(SecurityHeadersMiddleware()(mux)))
}

// mount registers h for path both with and without the trailing slash.
// An empty method matches every method not claimed by a more specific pattern.
func mount(mux *http.ServeMux, method, path string, h http.Handler) {
	prefix := ""
	if method != "" {
		prefix = method + " "
	}
	base := strings.TrimSuffix(path, "/")
	mux.Handle(prefix+base, h)
	mux.Handle(prefix+base+"/{$}", h)
}

func methodNotAllowed(allowed ...string) http.Handler {
	allow := strings.Join(append(allowed, "OPTIONS"), ", ")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", allow)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		utilities.WriteDetail(w, http.StatusMethodNotAllowed, fmt.Sprintf("Method \"%s\" not allowed.", r.Method))
	})
}

func healthHandler(db Pinger, logger *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			logger.Warnw("health check failed", "err", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
