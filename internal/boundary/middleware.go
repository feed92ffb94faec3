package boundary

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/birddigital/voicebridge/internal/ingress"
	"github.com/birddigital/voicebridge/internal/metrics"
)

// requestLogger logs each request's method, path, status, and duration,
// following the corpus's structured-access-log convention, and records
// the same observations into the HTTP request Prometheus metrics. A nil
// m is valid (tests construct servers without a metrics registry).
func requestLogger(log zerolog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			duration := time.Since(start)

			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", sw.status).
				Dur("duration", duration).
				Msg("http request")

			if m != nil {
				statusClass := strconv.Itoa(sw.status/100) + "xx"
				m.HTTPRequestsTotal.WithLabelValues(r.URL.Path, statusClass).Inc()
				m.HTTPRequestDuration.WithLabelValues(r.URL.Path).Observe(duration.Seconds())
			}
		})
	}
}

// recoverer converts a panic anywhere downstream into the spec's
// {"error":"internal_error"} envelope (spec §4.7/§7's "convert any
// residual uncaught error into 500 internal_error"), instead of chi's
// stock middleware.Recoverer, which writes a plain-text body.
func recoverer(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error().
						Interface("panic", rec).
						Str("path", r.URL.Path).
						Bytes("stack", debug.Stack()).
						Msg("recovered from panic")
					writeError(w, log, http.StatusInternalServerError, "internal_error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// sharedSecretAuth enforces a constant-time compare of header against
// secret. An empty secret disables the check entirely (local dev), per
// spec §4.7.
func sharedSecretAuth(log zerolog.Logger, header, secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}
			got := r.Header.Get(header)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				writeError(w, log, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// webhookSignatureAuth enforces HMAC-SHA1 verification of x-twilio-signature
// against the form body, per spec §4.7. A blank authToken disables the
// check. The form is parsed here with r.ParseForm, which consumes the body;
// downstream handlers calling r.ParseForm again reuse the parsed r.PostForm.
func webhookSignatureAuth(log zerolog.Logger, authToken, publicBaseURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authToken == "" {
				next.ServeHTTP(w, r)
				return
			}

			if err := r.ParseForm(); err != nil {
				writeError(w, log, http.StatusBadRequest, "invalid_payload")
				return
			}
			form := map[string][]string(r.PostForm)

			signature := r.Header.Get("x-twilio-signature")
			reqURL := requestURL(publicBaseURL, r)

			if !ingress.VerifyWebhookSignature(authToken, reqURL, form, signature) {
				writeError(w, log, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestURL builds the URL the signature was computed against: the
// configured public base URL plus the request path, or a best-effort
// http://<host><path> fallback when unset (spec §4.7).
func requestURL(publicBaseURL string, r *http.Request) string {
	if publicBaseURL != "" {
		base, err := url.Parse(publicBaseURL)
		if err == nil {
			base.Path = r.URL.Path
			return base.String()
		}
	}
	return "http://" + r.Host + r.URL.Path
}
